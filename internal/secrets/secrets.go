// Package secrets resolves the session signing secret at startup, either from
// an SSM SecureString parameter or, when none is configured, from the
// process's random source. A random secret means sessions do not survive a
// restart and are not shared between instances.
package secrets

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/linnemanlabs-docs/internal/xerrors"
)

// SSMGetParameterAPI is the subset of the SSM client used here.
type SSMGetParameterAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type Source string

const (
	SourceSSM    Source = "ssm"
	SourceRandom Source = "random"
)

// Random returns n bytes from crypto/rand.
func Random(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, xerrors.Wrap(err, "read random secret")
	}
	return b, nil
}

// FromSSM fetches and decrypts param. The stored value may be hex, standard
// base64 or raw text; it is decoded in that order of preference.
func FromSSM(ctx context.Context, client SSMGetParameterAPI, param string) ([]byte, error) {
	if client == nil {
		return nil, xerrors.New("ssm client is nil")
	}
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "get ssm parameter %q", param)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, xerrors.Newf("ssm parameter %q has no value", param)
	}
	return decode(strings.TrimSpace(*out.Parameter.Value)), nil
}

func decode(v string) []byte {
	if b, err := hex.DecodeString(v); err == nil && len(b) > 0 {
		return b
	}
	if b, err := base64.StdEncoding.DecodeString(v); err == nil && len(b) > 0 {
		return b
	}
	return []byte(v)
}

// SessionSecret returns the secret from SSM when param is set, otherwise n
// random bytes.
func SessionSecret(ctx context.Context, client SSMGetParameterAPI, param string, n int) ([]byte, Source, error) {
	if param == "" {
		b, err := Random(n)
		return b, SourceRandom, err
	}
	b, err := FromSSM(ctx, client, param)
	return b, SourceSSM, err
}
