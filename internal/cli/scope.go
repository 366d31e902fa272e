package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/boxtrainer/internal/database"
	"github.com/example/boxtrainer/pkg/models"
)

// scopeFlags select a pairing context: either --course or the language pair.
type scopeFlags struct {
	course string
	source int64
	target int64
	level  string
}

func (f *scopeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.course, "course", "", "course name")
	cmd.Flags().Int64Var(&f.source, "source", 0, "source language id")
	cmd.Flags().Int64Var(&f.target, "target", 0, "target language id")
	cmd.Flags().StringVar(&f.level, "level", "", "level within the language pair")
}

// resolve returns the context and whether the course lets items be
// flipped. Language pairs always allow flipping.
func (f *scopeFlags) resolve(ctx context.Context, courses *database.CourseRepository) (models.PairingContext, bool, error) {
	if f.course != "" {
		if f.source != 0 || f.target != 0 || f.level != "" {
			return models.PairingContext{}, false, fmt.Errorf("--course cannot be combined with --source, --target or --level")
		}
		c, err := courses.GetByName(ctx, f.course)
		if err != nil {
			return models.PairingContext{}, false, err
		}
		if c == nil {
			return models.PairingContext{}, false, fmt.Errorf("course %q not found", f.course)
		}
		return models.CourseContext(c.ID), c.FlipAllowed(), nil
	}
	if f.source <= 0 || f.target <= 0 {
		return models.PairingContext{}, false, fmt.Errorf("either --course or both --source and --target are required")
	}
	if f.source == f.target {
		return models.PairingContext{}, false, fmt.Errorf("source and target language must differ")
	}
	return models.LanguageContext(f.source, f.target, f.level), true, nil
}
