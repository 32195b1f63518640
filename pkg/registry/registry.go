package registry

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content/memory"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/retry"

	"github.com/absmach/hivemon/pkg/errors"
	"github.com/absmach/hivemon/pkg/model"
)

const (
	stateMediaType = "application/vnd.hivemon.training-state.v1+cbor"
	artifactType   = "application/vnd.hivemon.checkpoint.v1"
)

// Exporter pushes a materialized training state to a remote artifact
// repository.
type Exporter interface {
	Export(ctx context.Context, st model.State, tag string) error
}

type Config struct {
	URL          string `env:"URL"`
	Repository   string `env:"REPOSITORY"`
	Authenticate bool   `env:"AUTHENTICATE" envDefault:"false"`
	Username     string `env:"USERNAME"`
	Password     string `env:"PASSWORD"`
	Token        string `env:"TOKEN"`
}

type ociExporter struct {
	cfg Config
}

// NewExporter returns an Exporter that publishes checkpoints as OCI
// artifacts: a single CBOR layer packed into a v1.1 manifest and tagged.
func NewExporter(cfg Config) Exporter {
	return &ociExporter{cfg: cfg}
}

func (e *ociExporter) Export(ctx context.Context, st model.State, tag string) error {
	data, err := cbor.Marshal(st)
	if err != nil {
		return fmt.Errorf("%w: %s", errors.ErrUploadFailed, err)
	}

	staging := memory.New()

	layer, err := oras.PushBytes(ctx, staging, stateMediaType, data)
	if err != nil {
		return fmt.Errorf("%w: %s", errors.ErrUploadFailed, err)
	}

	opts := oras.PackManifestOptions{
		Layers: []ocispec.Descriptor{layer},
	}
	manifest, err := oras.PackManifest(ctx, staging, oras.PackManifestVersion1_1, artifactType, opts)
	if err != nil {
		return fmt.Errorf("%w: %s", errors.ErrUploadFailed, err)
	}

	if err := staging.Tag(ctx, manifest, tag); err != nil {
		return fmt.Errorf("%w: %s", errors.ErrUploadFailed, err)
	}

	repo, err := remote.NewRepository(e.cfg.Repository)
	if err != nil {
		return fmt.Errorf("%w: %s", errors.ErrUploadFailed, err)
	}
	e.setupAuthentication(repo)

	if _, err := oras.Copy(ctx, staging, tag, repo, tag, oras.DefaultCopyOptions); err != nil {
		return fmt.Errorf("%w: %s", errors.ErrUploadFailed, err)
	}

	return nil
}

func (e *ociExporter) setupAuthentication(repo *remote.Repository) {
	if !e.cfg.Authenticate {
		return
	}

	var cred auth.Credential
	if e.cfg.Username != "" && e.cfg.Password != "" {
		cred = auth.Credential{
			Username: e.cfg.Username,
			Password: e.cfg.Password,
		}
	} else if e.cfg.Token != "" {
		cred = auth.Credential{
			AccessToken: e.cfg.Token,
		}
	}

	repo.Client = &auth.Client{
		Client:     retry.DefaultClient,
		Cache:      auth.NewCache(),
		Credential: auth.StaticCredential(e.cfg.URL, cred),
	}
}
