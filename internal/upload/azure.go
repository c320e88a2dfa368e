package upload

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/go-faster/errors"
)

// AzureConfig holds Azure Blob Storage connection parameters.
type AzureConfig struct {
	// ConnectionString takes precedence over ServiceURL when set.
	ConnectionString string
	// ServiceURL is used with the default Azure credential chain.
	ServiceURL string
	Container  string
	// PublicBaseURL replaces the blob endpoint in returned URLs, for a CDN
	// in front of the container.
	PublicBaseURL string
	// BlockSize and Concurrency tune UploadStream. Zero uses SDK defaults.
	BlockSize   int64
	Concurrency int
}

var _ Provider = (*AzureBlob)(nil)

// AzureBlob stores images as block blobs in a single container.
type AzureBlob struct {
	client      *azblob.Client
	container   string
	baseURL     string
	blockSize   int64
	concurrency int
}

// NewAzureBlob creates the Azure client. No request is made until the first
// call.
func NewAzureBlob(cfg AzureConfig) (*AzureBlob, error) {
	if cfg.Container == "" {
		return nil, errors.New("azure container is required")
	}

	// Retries are disabled: an upload failure is terminal for the request.
	opts := &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	}

	var (
		client *azblob.Client
		err    error
	)
	switch {
	case cfg.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, opts)
	case cfg.ServiceURL != "":
		cred, cerr := azidentity.NewDefaultAzureCredential(nil)
		if cerr != nil {
			return nil, errors.Wrap(cerr, "azure credential")
		}
		client, err = azblob.NewClient(cfg.ServiceURL, cred, opts)
	default:
		return nil, errors.New("azure connection string or service url is required")
	}
	if err != nil {
		return nil, errors.Wrap(err, "create azure client")
	}

	base := cfg.PublicBaseURL
	if base == "" {
		base, err = url.JoinPath(client.URL(), cfg.Container)
		if err != nil {
			return nil, errors.Wrap(err, "container url")
		}
	}

	return &AzureBlob{
		client:      client,
		container:   cfg.Container,
		baseURL:     strings.TrimSuffix(base, "/"),
		blockSize:   cfg.BlockSize,
		concurrency: cfg.Concurrency,
	}, nil
}

// EnsureContainer creates the container when it does not exist yet.
func (a *AzureBlob) EnsureContainer(ctx context.Context) error {
	_, err := a.client.CreateContainer(ctx, a.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return errors.Wrapf(err, "create container %s", a.container)
	}
	return nil
}

// Ready checks that the container is reachable.
func (a *AzureBlob) Ready(ctx context.Context) error {
	_, err := a.client.ServiceClient().NewContainerClient(a.container).GetProperties(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "container %s", a.container)
	}
	return nil
}

func (a *AzureBlob) PutBuffer(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := a.client.UploadBuffer(ctx, a.container, key, data, &azblob.UploadBufferOptions{
		HTTPHeaders: headers(contentType),
	})
	if err != nil {
		return "", errors.Wrapf(err, "upload buffer %s", key)
	}
	return a.url(key), nil
}

// PutStream stages blocks as they arrive and commits the block list only
// once the stream is fully read, so a failed upload leaves no visible blob.
func (a *AzureBlob) PutStream(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	_, err := a.client.UploadStream(ctx, a.container, key, body, &azblob.UploadStreamOptions{
		BlockSize:   a.blockSize,
		Concurrency: a.concurrency,
		HTTPHeaders: headers(contentType),
	})
	if err != nil {
		return "", errors.Wrapf(err, "upload stream %s", key)
	}
	return a.url(key), nil
}

func (a *AzureBlob) url(key string) string {
	return a.baseURL + "/" + key
}

func headers(contentType string) *blob.HTTPHeaders {
	if contentType == "" {
		return nil
	}
	return &blob.HTTPHeaders{BlobContentType: to.Ptr(contentType)}
}
