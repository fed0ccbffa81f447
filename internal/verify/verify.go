package verify

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/adamancini/upkeep/internal/logging"
	"github.com/adamancini/upkeep/internal/release"
)

// Result is the outcome of validating one staged artifact.
type Result struct {
	Passed         bool              `json:"passed" yaml:"passed"`
	ChecksumValid  bool              `json:"checksum_valid" yaml:"checksum_valid"`
	SignatureValid *bool             `json:"signature_valid,omitempty" yaml:"signature_valid,omitempty"`
	EvaluatedAt    time.Time         `json:"evaluated_at" yaml:"evaluated_at"`
	Details        map[string]string `json:"details,omitempty" yaml:"details,omitempty"`

	err error
}

// Err returns the reason validation did not pass, or nil when it passed.
func (r *Result) Err() error {
	if r.Passed {
		return nil
	}
	if r.err != nil {
		return r.err
	}
	return errors.New("validation did not pass")
}

// derivePassed is the only place Result.Passed is computed.
func derivePassed(checksumValid bool, signatureValid *bool, signatureRequired bool) bool {
	return checksumValid && ((signatureValid != nil && *signatureValid) || !signatureRequired)
}

// Validator checks staged artifacts against their declared digest and
// signature.
type Validator struct {
	keys   *keyring
	logger *log.Logger
	now    func() time.Time
}

// NewValidator loads keys and returns a Validator. A malformed configured key
// is an error; an absent key only fails signatures of that scheme.
func NewValidator(keys Keys, logger *log.Logger) (*Validator, error) {
	ring, err := loadKeyring(keys)
	if err != nil {
		return nil, err
	}
	return &Validator{
		keys:   ring,
		logger: logging.OrDiscard(logger),
		now:    time.Now,
	}, nil
}

// Validate checks the file at stagedPath against artifact. It never returns
// an error; every failure is recorded on the Result and fails closed.
func (v *Validator) Validate(stagedPath string, artifact release.ArtifactRef, signatureRequired bool) *Result {
	res := &Result{
		EvaluatedAt: v.now().UTC(),
		Details:     map[string]string{},
	}
	var errs []error

	if err := VerifyFile(stagedPath, artifact.SHA256); err != nil {
		var ce *ChecksumError
		if errors.As(err, &ce) {
			res.Details["expected_sha256"] = ce.Expected
			res.Details["actual_sha256"] = ce.Got
		}
		res.Details["checksum"] = err.Error()
		errs = append(errs, err)
	} else {
		res.ChecksumValid = true
		res.Details["checksum"] = "ok"
	}

	switch {
	case artifact.HasSignature():
		scheme, err := v.keys.verifySignature(stagedPath, artifact.Signature)
		res.Details["signature_scheme"] = scheme.String()
		valid := err == nil
		res.SignatureValid = &valid
		if err != nil {
			res.Details["signature"] = err.Error()
			if signatureRequired {
				errs = append(errs, err)
			} else {
				v.logger.Warn("Optional signature did not verify", "path", stagedPath, "error", err)
			}
		} else {
			res.Details["signature"] = "ok"
		}
	case signatureRequired:
		invalid := false
		res.SignatureValid = &invalid
		res.Details["signature"] = ErrSignatureMissing.Error()
		errs = append(errs, ErrSignatureMissing)
	}

	res.Passed = derivePassed(res.ChecksumValid, res.SignatureValid, signatureRequired)
	if !res.Passed {
		res.err = errors.Join(errs...)
		if res.err == nil {
			res.err = fmt.Errorf("validation did not pass")
		}
	}

	v.logger.Debug("Validated artifact", "path", stagedPath, "passed", res.Passed,
		"checksumValid", res.ChecksumValid, "signatureRequired", signatureRequired)
	return res
}
