// Package secretsrc resolves the shared token-encryption secret for a
// deployment. Resolution order: explicit value, SSM parameter, then the
// built-in dev secret when explicitly allowed.
package secretsrc

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/gateward/gateward/internal/log"
	"github.com/gateward/gateward/internal/xerrors"
)

// DevSecret is the well-known development fallback. It must never reach
// production, which is why using it requires an explicit opt-in.
const DevSecret = "default-encryption-key-change-in-production"

// SSMAPI is the slice of the SSM client the resolver needs. Extracted so
// tests can stub parameter reads.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, opts ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type Options struct {
	Logger log.Logger

	// Explicit wins over everything when non-empty.
	Explicit string

	// SSMParam is consulted when Explicit is empty. Empty skips SSM.
	SSMParam string

	// AllowDev permits falling back to DevSecret when neither an
	// explicit value nor SSM yields one.
	AllowDev bool

	// SSMClient overrides the default client (tests). Nil builds one
	// from the ambient AWS config.
	SSMClient SSMAPI
}

// Resolve returns the token secret per the resolution order, or an error
// when no source yields one.
func Resolve(ctx context.Context, opts Options) (string, error) {
	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}

	if s := strings.TrimSpace(opts.Explicit); s != "" {
		L.Info(ctx, "token secret from explicit configuration")
		return s, nil
	}

	if opts.SSMParam != "" {
		s, err := fromSSM(ctx, opts)
		if err == nil {
			L.Info(ctx, "token secret from SSM", "param", opts.SSMParam)
			return s, nil
		}
		if !opts.AllowDev {
			return "", xerrors.Wrapf(err, "resolve token secret from SSM parameter %s", opts.SSMParam)
		}
		L.Warn(ctx, "SSM secret unavailable, falling back to dev secret",
			"param", opts.SSMParam, "err", err.Error())
	}

	if opts.AllowDev {
		L.Warn(ctx, "using built-in dev token secret; tokens are NOT protected")
		return DevSecret, nil
	}

	return "", xerrors.New("no token secret configured")
}

func fromSSM(ctx context.Context, opts Options) (string, error) {
	client := opts.SSMClient
	if client == nil {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return "", xerrors.Wrap(err, "load AWS config")
		}
		client = ssm.NewFromConfig(awsCfg)
	}

	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(opts.SSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", opts.SSMParam)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", opts.SSMParam)
	}

	s := strings.TrimSpace(*out.Parameter.Value)
	if s == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", opts.SSMParam)
	}
	return s, nil
}
