// Package subject manages family subjects and their grading weights.
package subject

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/homeschool/core"
	"github.com/trezcool/homeschool/core/grading"
)

var (
	ErrNotFound = core.NewNotFoundError("subject")

	defaultColor = "#6366F1"
)

// Subject is a named, colored category of work scoped to a family.
type Subject struct {
	ID        string    `json:"id"`
	FamilyID  string    `json:"family_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Weights   []Weight  `json:"weights"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Weight is the percentage of a subject grade given to a category.
type Weight struct {
	Category grading.Category `json:"category"`
	Weight   float64          `json:"weight"`
}

// WeightMap returns the weights as consumed by the grading calculator.
func (s Subject) WeightMap() grading.Weights {
	if len(s.Weights) == 0 {
		return nil
	}
	weights := make(grading.Weights, len(s.Weights))
	for _, w := range s.Weights {
		weights[w.Category] = w.Weight
	}
	return weights
}

type NewSubject struct {
	Name  string `json:"name" validate:"required,notblank,max=64"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
}

func (ns *NewSubject) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Color = core.CleanString(ns.Color)
	return validate.Struct(ns)
}

type UpdateSubject struct {
	Name  *string `json:"name" validate:"omitempty,notblank,max=64"`
	Color *string `json:"color" validate:"omitempty,hexcolor"`
}

func (us *UpdateSubject) Validate(validate *validator.Validate) error {
	us.Name = core.CleanStringPtr(us.Name)
	us.Color = core.CleanStringPtr(us.Color)
	return validate.Struct(us)
}

type Repository interface {
	CreateSubject(ctx context.Context, sub Subject) (Subject, error)
	// GetSubject returns the subject with its weights.
	GetSubject(ctx context.Context, familyID, id string) (Subject, error)
	QuerySubjects(ctx context.Context, familyID string) ([]Subject, error)
	UpdateSubject(ctx context.Context, sub Subject) (Subject, error)
	// DeleteSubject removes the subject and its weights; its assignments lose their subject.
	DeleteSubject(ctx context.Context, familyID, id string) error
	// ReplaceWeights swaps all weights of a subject in one transaction.
	ReplaceWeights(ctx context.Context, subjectID string, weights []Weight) error
}

// GoalRecalculator recomputes the goals of a family that are not scoped to a subject.
type GoalRecalculator interface {
	RecalculateUnscoped(ctx context.Context, familyID string) error
}

type Service struct {
	repo  Repository
	goals GoalRecalculator
}

func NewService(repo Repository, goals GoalRecalculator) *Service {
	return &Service{repo: repo, goals: goals}
}

func (svc *Service) Create(ctx context.Context, actor core.Actor, ns NewSubject) (Subject, error) {
	if err := actor.RequireManager(); err != nil {
		return Subject{}, err
	}
	color := ns.Color
	if color == "" {
		color = defaultColor
	}
	now := core.NowFunc()
	return svc.repo.CreateSubject(ctx, Subject{
		FamilyID:  actor.FamilyID,
		Name:      ns.Name,
		Color:     strings.ToUpper(color),
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *Service) Get(ctx context.Context, actor core.Actor, id string) (Subject, error) {
	return svc.repo.GetSubject(ctx, actor.FamilyID, id)
}

func (svc *Service) List(ctx context.Context, actor core.Actor) ([]Subject, error) {
	return svc.repo.QuerySubjects(ctx, actor.FamilyID)
}

func (svc *Service) Update(ctx context.Context, actor core.Actor, id string, us UpdateSubject) (Subject, error) {
	if err := actor.RequireManager(); err != nil {
		return Subject{}, err
	}
	sub, err := svc.repo.GetSubject(ctx, actor.FamilyID, id)
	if err != nil {
		return Subject{}, err
	}
	if us.Name != nil {
		sub.Name = *us.Name
	}
	if us.Color != nil {
		sub.Color = strings.ToUpper(*us.Color)
	}
	sub.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateSubject(ctx, sub)
}

func (svc *Service) Delete(ctx context.Context, actor core.Actor, id string) error {
	if err := actor.RequireManager(); err != nil {
		return err
	}
	if err := svc.repo.DeleteSubject(ctx, actor.FamilyID, id); err != nil {
		return err
	}
	// goals of the subject now count every subject
	return errors.Wrap(svc.goals.RecalculateUnscoped(ctx, actor.FamilyID), "recalculating goals")
}

// UpdateWeights replaces the weights of a subject. An empty list clears them.
func (svc *Service) UpdateWeights(ctx context.Context, actor core.Actor, id string, weights []Weight) (Subject, error) {
	if err := actor.RequireManager(); err != nil {
		return Subject{}, err
	}
	if _, err := svc.repo.GetSubject(ctx, actor.FamilyID, id); err != nil {
		return Subject{}, err
	}
	cleaned, err := ValidateWeights(weights)
	if err != nil {
		return Subject{}, err
	}
	if err = svc.repo.ReplaceWeights(ctx, id, cleaned); err != nil {
		return Subject{}, err
	}
	return svc.repo.GetSubject(ctx, actor.FamilyID, id)
}

// ValidateWeights checks a full set of weights: known and unique categories, each weight within [0,100],
// and a total that rounds to exactly 100. Categories are normalized in the returned copy.
func ValidateWeights(weights []Weight) ([]Weight, error) {
	if len(weights) == 0 {
		return []Weight{}, nil
	}

	var fldErrs []core.FieldError
	seen := make(map[grading.Category]bool, len(weights))
	cleaned := make([]Weight, 0, len(weights))
	var sum float64
	for i, w := range weights {
		field := fmt.Sprintf("weights[%d]", i)
		cat, ok := grading.ParseCategory(string(w.Category))
		switch {
		case !ok:
			fldErrs = append(fldErrs, core.FieldError{Field: field + ".category", Error: "invalid category"})
		case seen[cat]:
			fldErrs = append(fldErrs, core.FieldError{Field: field + ".category", Error: "duplicate category"})
		}
		seen[cat] = true
		if math.IsNaN(w.Weight) || w.Weight < 0 || w.Weight > 100 {
			fldErrs = append(fldErrs, core.FieldError{Field: field + ".weight", Error: "weight must be between 0 and 100"})
		}
		sum += w.Weight
		cleaned = append(cleaned, Weight{Category: cat, Weight: w.Weight})
	}
	if len(fldErrs) > 0 {
		return nil, core.NewValidationError(nil, fldErrs...)
	}
	if math.Round(sum) != 100 {
		msg := fmt.Sprintf("weights must add up to 100 (got %g)", sum)
		return nil, core.NewValidationError(nil, core.FieldError{Field: "weights", Error: msg})
	}
	return cleaned, nil
}
