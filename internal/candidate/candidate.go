// Package candidate holds the candidate record store, its cursor contract and
// the filter/sort/export transformations the admin dashboard applies to a page.
package candidate

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"valentinequest/internal/database"
)

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("candidate: validation failed")

const requiredFieldsMessage = "Essential fields (name, email, handle, and motivation) are required"

// Candidate is one submitted application as exposed over the API.
type Candidate struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Instagram       string `json:"instagram"`
	LinkedIn        string `json:"linkedIn"`
	ResumeURL       string `json:"resumeUrl"`
	ExperienceLevel string `json:"experienceLevel"`
	Motivation      string `json:"motivation"`
	DateIdea        string `json:"dateIdea"`
	Availability    string `json:"availability"`
	CreatedAt       int64  `json:"createdAt"`
}

// Input carries the caller supplied fields of a new candidate.
type Input struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Instagram       string `json:"instagram"`
	LinkedIn        string `json:"linkedIn"`
	ResumeURL       string `json:"resumeUrl"`
	ExperienceLevel string `json:"experienceLevel"`
	Motivation      string `json:"motivation"`
	DateIdea        string `json:"dateIdea"`
	Availability    string `json:"availability"`
}

// ValidationError lists the offending fields of a rejected Input.
type ValidationError struct {
	Missing []string
	TooLong []string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return requiredFieldsMessage
	}
	return fmt.Sprintf("fields exceed maximum length: %s", strings.Join(e.TooLong, ", "))
}

// Is reports ErrValidation so callers can use errors.Is.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Normalize trims surrounding whitespace from every field.
func (in Input) Normalize() Input {
	return Input{
		Name:            strings.TrimSpace(in.Name),
		Email:           strings.TrimSpace(in.Email),
		Phone:           strings.TrimSpace(in.Phone),
		Instagram:       strings.TrimSpace(in.Instagram),
		LinkedIn:        strings.TrimSpace(in.LinkedIn),
		ResumeURL:       strings.TrimSpace(in.ResumeURL),
		ExperienceLevel: strings.TrimSpace(in.ExperienceLevel),
		Motivation:      strings.TrimSpace(in.Motivation),
		DateIdea:        strings.TrimSpace(in.DateIdea),
		Availability:    strings.TrimSpace(in.Availability),
	}
}

// Validate checks a normalized Input. Column limits mirror database.Candidate.
func (in Input) Validate() error {
	verr := &ValidationError{}

	required := []struct {
		name  string
		value string
	}{
		{"name", in.Name},
		{"email", in.Email},
		{"instagram", in.Instagram},
		{"motivation", in.Motivation},
	}
	for _, f := range required {
		if f.value == "" {
			verr.Missing = append(verr.Missing, f.name)
		}
	}

	limits := []struct {
		name  string
		value string
		max   int
	}{
		{"name", in.Name, 255},
		{"email", in.Email, 320},
		{"phone", in.Phone, 64},
		{"instagram", in.Instagram, 255},
		{"linkedIn", in.LinkedIn, 512},
		{"resumeUrl", in.ResumeURL, 1024},
		{"experienceLevel", in.ExperienceLevel, 64},
	}
	for _, f := range limits {
		if utf8.RuneCountInString(f.value) > f.max {
			verr.TooLong = append(verr.TooLong, f.name)
		}
	}

	if len(verr.Missing) > 0 || len(verr.TooLong) > 0 {
		return verr
	}
	return nil
}

func fromModel(row database.Candidate) Candidate {
	return Candidate{
		ID:              row.ID,
		Name:            row.Name,
		Email:           row.Email,
		Phone:           row.Phone,
		Instagram:       row.Instagram,
		LinkedIn:        row.LinkedIn,
		ResumeURL:       row.ResumeURL,
		ExperienceLevel: row.ExperienceLevel,
		Motivation:      row.Motivation,
		DateIdea:        row.DateIdea,
		Availability:    row.Availability,
		CreatedAt:       row.CreatedAt,
	}
}
