package repositories

import (
	"context"
	"fmt"

	"worklens/internal/core/domain"
	"worklens/internal/core/ports"
	"worklens/pkg/config"
	"worklens/pkg/utils"
)

// SeedDirectory writes the configured accounts into dir. Existing accounts
// with the same id are overwritten so config edits take effect on restart.
func SeedDirectory(ctx context.Context, dir ports.Directory, seeds []config.AccountSeed) error {
	for _, seed := range seeds {
		role := domain.ParseRole(seed.Role)
		if role == domain.RoleNone {
			return fmt.Errorf("account %s: unknown role %q", seed.Email, seed.Role)
		}
		account := &domain.Account{
			SubjectID:    domain.SubjectID(utils.NormalizeSubjectID(seed.Email)),
			Name:         seed.Name,
			Role:         role,
			NumericID:    seed.NumericID,
			PasswordHash: seed.PasswordHash,
		}
		if seed.Manager != "" {
			account.Manager = domain.SubjectID(utils.NormalizeSubjectID(seed.Manager))
		}
		if err := dir.Put(ctx, account); err != nil {
			return fmt.Errorf("account %s: %w", seed.Email, err)
		}
	}
	return nil
}
