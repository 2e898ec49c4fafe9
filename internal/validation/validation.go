package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/wftracker/wftracker/internal/checklist"
	"github.com/wftracker/wftracker/internal/types"
)

// Limits applied to client-supplied progress payloads.
const (
	MaxTasks              = 64
	MaxCheckboxesPerStage = 32
	MaxIDLength           = 64
	MaxNameLength         = 200
	MaxUsernameLength     = 64
	MaxFullNameLength     = 200
	MaxPasswordLength     = 72
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// ValidateUTF8 returns an error if the value is not valid UTF-8.
func ValidateUTF8(field, value string) *ValidationError {
	if !utf8.ValidString(value) {
		return &ValidationError{
			Field:   field,
			Message: "must be valid UTF-8",
		}
	}
	return nil
}

// ValidateNoNullBytes returns an error if the value contains null bytes.
func ValidateNoNullBytes(field, value string) *ValidationError {
	if strings.Contains(value, "\x00") {
		return &ValidationError{
			Field:   field,
			Message: "must not contain null bytes",
		}
	}
	return nil
}

// ValidateMaxLength returns an error if the value exceeds max runes.
func ValidateMaxLength(field, value string, max int) *ValidationError {
	if utf8.RuneCountInString(value) > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", max),
		}
	}
	return nil
}

// ValidateRequired returns an error if the value is empty or whitespace-only.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Message: "is required",
		}
	}
	return nil
}

// ValidateEnum returns an error if the value is not in the allowed list.
func ValidateEnum(field, value string, allowed []string) *ValidationError {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidateUsername checks a login name: required, short, and limited to
// letters, digits, dot, dash and underscore.
func ValidateUsername(field, value string) *ValidationError {
	if err := ValidateRequired(field, value); err != nil {
		return err
	}
	if err := ValidateMaxLength(field, value, MaxUsernameLength); err != nil {
		return err
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '-', r == '_':
		default:
			return &ValidationError{
				Field:   field,
				Message: "may only contain letters, digits, '.', '-' and '_'",
			}
		}
	}
	return nil
}

// validateText runs the common string checks for a field.
func validateText(c *Collector, field, value string, max int) {
	if err := ValidateUTF8(field, value); err != nil {
		c.Add(err)
		return
	}
	c.Add(ValidateNoNullBytes(field, value))
	c.Add(ValidateMaxLength(field, value, max))
}

// ValidateLoginRequest checks that both credentials are present.
func ValidateLoginRequest(req types.LoginRequest) []ValidationError {
	var c Collector
	c.Add(ValidateRequired("username", req.Username))
	c.Add(ValidateRequired("password", req.Password))
	validateText(&c, "username", req.Username, MaxUsernameLength)
	c.Add(ValidateMaxLength("password", req.Password, MaxPasswordLength))
	return c.Errors()
}

// ValidateNewUser checks an account before it is created.
func ValidateNewUser(u types.NewUser) []ValidationError {
	var c Collector
	c.Add(ValidateUsername("username", u.Username))
	validateText(&c, "fullName", u.FullName, MaxFullNameLength)
	c.Add(ValidateRequired("passwordHash", u.PasswordHash))
	return c.Errors()
}

// ValidateToggleRequest checks a toggle target. Unknown task or checkbox IDs
// are not errors here; they are a no-op for the toggle itself.
func ValidateToggleRequest(req types.ToggleRequest) []ValidationError {
	var c Collector
	c.Add(ValidateRequired("taskId", req.TaskID))
	c.Add(ValidateRequired("checkboxId", req.CheckboxID))
	allowed := make([]string, len(checklist.StageKeys))
	for i, k := range checklist.StageKeys {
		allowed[i] = string(k)
	}
	c.Add(ValidateEnum("stage", string(req.Stage), allowed))
	return c.Errors()
}

// ValidateTasks checks a full task list submitted for saving. Task IDs must
// be present and unique, checkbox IDs must be present and unique within a
// task, and every string must be clean UTF-8 within its length limit.
func ValidateTasks(tasks []checklist.Task) []ValidationError {
	var c Collector

	if len(tasks) > MaxTasks {
		c.Add(&ValidationError{
			Field:   "tasks",
			Message: fmt.Sprintf("exceeds maximum of %d tasks", MaxTasks),
		})
		return c.Errors()
	}

	taskIDs := make(map[string]struct{}, len(tasks))
	for i, task := range tasks {
		prefix := fmt.Sprintf("tasks[%d]", i)

		idField := prefix + ".id"
		if err := ValidateRequired(idField, task.ID); err != nil {
			c.Add(err)
		} else {
			validateText(&c, idField, task.ID, MaxIDLength)
			if _, dup := taskIDs[task.ID]; dup {
				c.Add(&ValidationError{Field: idField, Message: fmt.Sprintf("duplicate task id %q", task.ID)})
			}
			taskIDs[task.ID] = struct{}{}
		}
		validateText(&c, prefix+".name", task.Name, MaxNameLength)

		boxIDs := make(map[string]struct{})
		for _, key := range checklist.StageKeys {
			boxes := task.Stages.Get(key)
			stageField := fmt.Sprintf("%s.stages.%s", prefix, key)
			if len(boxes) > MaxCheckboxesPerStage {
				c.Add(&ValidationError{
					Field:   stageField,
					Message: fmt.Sprintf("exceeds maximum of %d checkboxes", MaxCheckboxesPerStage),
				})
				continue
			}
			for j, box := range boxes {
				field := fmt.Sprintf("%s[%d].id", stageField, j)
				if err := ValidateRequired(field, box.ID); err != nil {
					c.Add(err)
					continue
				}
				validateText(&c, field, box.ID, MaxIDLength)
				if _, dup := boxIDs[box.ID]; dup {
					c.Add(&ValidationError{Field: field, Message: fmt.Sprintf("duplicate checkbox id %q", box.ID)})
				}
				boxIDs[box.ID] = struct{}{}
			}
		}
	}

	return c.Errors()
}
