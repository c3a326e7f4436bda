package skill

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/catenax-ng/product-agents-edc-sub000/agreement"
	"github.com/catenax-ng/product-agents-edc-sub000/types"
)

// Distribution says where a skill may be executed.
type Distribution string

const (
	DistributionConsumer Distribution = "consumer"
	DistributionProvider Distribution = "provider"
	DistributionAll      Distribution = "all"
)

// Skill is a stored, parameterized query text addressed by an asset id.
type Skill struct {
	Name         string       `json:"name"`
	Text         string       `json:"text"`
	Description  string       `json:"description,omitempty"`
	Distribution Distribution `json:"distribution"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

var (
	ErrNotFound     = errors.New("skill not found")
	ErrInvalidName  = errors.New("skill name must be a skill asset id")
	ErrEmptyText    = errors.New("skill text is empty")
	ErrDistribution = errors.New("unknown skill distribution")
)

// Store keeps skill texts.
type Store interface {
	Put(ctx context.Context, s Skill) error
	Get(ctx context.Context, name string) (*Skill, error)
	Delete(ctx context.Context, name string) (bool, error)
	Exists(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]string, error)
}

// Validate checks s and fills defaults.
func Validate(s *Skill) error {
	switch {
	case !agreement.IsSkill(s.Name):
		return invalid(fmt.Errorf("%w: %q", ErrInvalidName, s.Name))
	case s.Text == "":
		return invalid(ErrEmptyText)
	}
	switch s.Distribution {
	case "":
		s.Distribution = DistributionAll
	case DistributionConsumer, DistributionProvider, DistributionAll:
	default:
		return invalid(fmt.Errorf("%w: %q", ErrDistribution, s.Distribution))
	}
	return nil
}

func invalid(err error) error {
	return types.NewError(types.ErrValidation, "invalid skill").
		WithCause(err).
		WithHTTPStatus(http.StatusBadRequest)
}

func notFound(name string) error {
	return types.NewError(types.ErrNotFound, "skill not found").
		WithCause(ErrNotFound).
		WithHTTPStatus(http.StatusNotFound).
		WithTarget(name)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
