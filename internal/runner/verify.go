package runner

import (
	"context"

	"github.com/aqasim81/data-migration-runner/internal/migration"
	"github.com/aqasim81/data-migration-runner/internal/record"
)

// Verify runs the verifier of the named migration. Verification is
// advisory: a missing verifier, a verifier error or a panic all yield
// false. Only an unknown name is an error.
func (r *Runner) Verify(ctx context.Context, name string) (bool, error) {
	def, err := r.lookup(name)
	if err != nil {
		return false, err
	}

	return r.verify(ctx, def), nil
}

// VerifyCompleted verifies every COMPLETED record. Records whose migration
// is no longer registered are reported as unverified.
func (r *Runner) VerifyCompleted(ctx context.Context) ([]VerifyResult, error) {
	records, err := r.Records(ctx)
	if err != nil {
		return nil, err
	}

	results := []VerifyResult{}

	for _, rec := range records {
		if rec.Status != record.StatusCompleted {
			continue
		}

		def, ok := r.registry.Get(rec.Name)
		if !ok {
			results = append(results, VerifyResult{Name: rec.Name, Note: "not registered"})
			continue
		}

		if _, ok := def.(migration.Verifier); !ok {
			results = append(results, VerifyResult{Name: rec.Name, Note: "no verifier"})
			continue
		}

		results = append(results, VerifyResult{Name: rec.Name, Verified: r.verify(ctx, def)})
	}

	return results, nil
}

func (r *Runner) verify(ctx context.Context, def migration.Definition) bool {
	name := def.Meta().Name
	log := zerologAdapter{l: r.logger.With().Str("migration", name).Logger()}

	v, ok := def.(migration.Verifier)
	if !ok {
		log.Warnf("no verifier defined")
		return false
	}

	verified, err := callVerify(ctx, v, log)
	if err != nil {
		log.Errorf("verifier error: %v", err)
		return false
	}

	if verified {
		log.Infof("verification passed")
	} else {
		log.Warnf("verification failed")
	}

	return verified
}
