package auth

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gopkg.in/yaml.v3"

	"github.com/keithlinneman/linnemanlabs-docs/internal/xerrors"
)

// maxCredentialBytes bounds how much of a credential document is read.
const maxCredentialBytes = 1 << 20

// CredentialSource returns the current username -> password hash mapping.
type CredentialSource interface {
	Load(ctx context.Context) (map[string]string, error)
}

// CredentialFunc adapts a function into a CredentialSource.
type CredentialFunc func(context.Context) (map[string]string, error)

func (f CredentialFunc) Load(ctx context.Context) (map[string]string, error) { return f(ctx) }

// FileCredentials reads a YAML credential file from disk.
type FileCredentials struct {
	Path string
}

func (f FileCredentials) Load(ctx context.Context) (map[string]string, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "open credentials %q", f.Path)
	}
	defer fh.Close()
	creds, err := ParseCredentials(fh)
	if err != nil {
		return nil, xerrors.Wrapf(err, "credentials %q", f.Path)
	}
	return creds, nil
}

// S3GetObjectAPI is the subset of the S3 client used by S3Credentials.
type S3GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Credentials reads a YAML credential document from an S3 object.
type S3Credentials struct {
	Client S3GetObjectAPI
	Bucket string
	Key    string
}

func (c S3Credentials) Load(ctx context.Context) (map[string]string, error) {
	if c.Client == nil {
		return nil, xerrors.New("s3 credentials: client is nil")
	}
	out, err := c.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.Bucket),
		Key:    aws.String(c.Key),
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "get credentials s3://%s/%s", c.Bucket, c.Key)
	}
	defer out.Body.Close()
	creds, err := ParseCredentials(out.Body)
	if err != nil {
		return nil, xerrors.Wrapf(err, "credentials s3://%s/%s", c.Bucket, c.Key)
	}
	return creds, nil
}

// ParseCredentials decodes a YAML mapping of username to bcrypt hash.
// Duplicate usernames are rejected by the YAML decoder. An empty document is
// an empty mapping.
func ParseCredentials(r io.Reader) (map[string]string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxCredentialBytes+1))
	if err != nil {
		return nil, xerrors.Wrap(err, "read credentials")
	}
	if len(data) > maxCredentialBytes {
		return nil, xerrors.Newf("credential document exceeds %d bytes", maxCredentialBytes)
	}
	raw := map[string]string{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, xerrors.Wrap(err, "parse credentials yaml")
	}
	creds := make(map[string]string, len(raw))
	for user, hash := range raw {
		user = strings.TrimSpace(user)
		if user == "" {
			return nil, xerrors.WithStack(errors.New("credential entry with empty username"))
		}
		if _, dup := creds[user]; dup {
			return nil, xerrors.Newf("duplicate username %q", user)
		}
		creds[user] = strings.TrimSpace(hash)
	}
	return creds, nil
}
