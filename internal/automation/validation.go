package automation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/mblarson/omnihome/internal/device"
)

const (
	maxNameLength     = 100
	maxSlugLength     = 50
	maxActions        = 100
	maxDelayMS        = 300000 // 5 minutes
	maxDescriptionLen = 500
	slugPattern       = `^[a-z0-9]+(?:-[a-z0-9]+)*$`
)

var slugRegex = regexp.MustCompile(slugPattern)

// ValidateScene returns the first problem found in s.
func ValidateScene(s *Scene) error {
	if s == nil {
		return ErrInvalidScene
	}
	if err := ValidateName(s.Name); err != nil {
		return err
	}
	// An empty slug is generated on create.
	if s.Slug != "" {
		if err := ValidateSlug(s.Slug); err != nil {
			return err
		}
	}
	if len(s.Description) > maxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidScene, maxDescriptionLen)
	}

	if len(s.Actions) == 0 {
		return ErrNoActions
	}
	if len(s.Actions) > maxActions {
		return fmt.Errorf("%w: exceeds maximum of %d actions", ErrInvalidAction, maxActions)
	}
	for i, action := range s.Actions {
		if err := ValidateAction(action); err != nil {
			return fmt.Errorf("action[%d]: %w", i, err)
		}
	}
	return nil
}

// ValidateName checks if a scene name is valid.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateSlug checks if a slug format is valid.
func ValidateSlug(slug string) error {
	if slug == "" {
		return fmt.Errorf("%w: slug cannot be empty", ErrInvalidSlug)
	}
	if len(slug) > maxSlugLength {
		return fmt.Errorf("%w: slug exceeds %d characters", ErrInvalidSlug, maxSlugLength)
	}
	if !slugRegex.MatchString(slug) {
		return fmt.Errorf("%w: must be lowercase alphanumeric with hyphens", ErrInvalidSlug)
	}
	return nil
}

// ValidateAction checks that an action names its targets and a change.
func ValidateAction(action SceneAction) error {
	switch {
	case action.DeviceID == "" && action.Selector == nil:
		return fmt.Errorf("%w: device_id or selector is required", ErrInvalidAction)
	case action.DeviceID != "" && action.Selector != nil:
		return fmt.Errorf("%w: device_id and selector are exclusive", ErrInvalidAction)
	}
	if sel := action.Selector; sel != nil {
		if sel.Type == "" && sel.Room == "" {
			return fmt.Errorf("%w: selector needs a type or room", ErrInvalidAction)
		}
		if sel.Type != "" {
			if err := device.ValidateType(sel.Type); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidAction, err)
			}
		}
	}
	if action.IsOn == nil && action.Value == nil {
		return fmt.Errorf("%w: is_on or value is required", ErrInvalidAction)
	}
	if action.Value != nil {
		if err := device.ValidateValue(action.Value); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidAction, err)
		}
	}
	if action.DelayMS < 0 || action.DelayMS > maxDelayMS {
		return fmt.Errorf("%w: delay_ms must be 0-%d", ErrInvalidAction, maxDelayMS)
	}
	return nil
}

// GenerateSlug creates a URL-safe slug from a name.
func GenerateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "_", "-")

	var result strings.Builder
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	slug = strings.Trim(result.String(), "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}

	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	return slug
}

// GenerateID creates a new UUID for a scene or execution.
func GenerateID() string {
	return uuid.New().String()
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
