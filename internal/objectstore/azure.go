package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/banditpipe/rewardcore/internal/compression"
	"github.com/banditpipe/rewardcore/internal/secrets"
)

// AzureBlobAPI is the subset of an azblob container client the store needs.
type AzureBlobAPI interface {
	UploadStream(ctx context.Context, blobName string, body io.Reader) error
	DownloadStream(ctx context.Context, blobName string) (io.ReadCloser, error)
	ListBlobs(ctx context.Context, prefix string) ([]ObjectMeta, error)
	DeleteBlob(ctx context.Context, blobName string) error
}

// AzureBlobConfig configures an AzureBlobStore.
type AzureBlobConfig struct {
	Account           string
	Container         string
	Compression       string
	AccessKeySecret   string
	BufferType        string // "memory" (default) or "disk"
}

// AzureBlobStore is an objectstore.Store backed by Azure Blob Storage.
type AzureBlobStore struct {
	cfg     AzureBlobConfig
	secrets *secrets.Store

	// Client, if set, overrides client construction (test only).
	Client AzureBlobAPI
}

func NewAzureBlobStore(cfg AzureBlobConfig, secretStore *secrets.Store) (*AzureBlobStore, error) {
	if cfg.Account == "" || cfg.Container == "" {
		return nil, fmt.Errorf("azure blob store requires account and container")
	}
	if cfg.Compression == "" {
		cfg.Compression = "gzip"
	}
	return &AzureBlobStore{cfg: cfg, secrets: secretStore}, nil
}

func (a *AzureBlobStore) client(ctx context.Context) (AzureBlobAPI, error) {
	if a.Client != nil {
		return a.Client, nil
	}
	key, err := a.secrets.Get(ctx, a.cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("missing azure blob access key credential %q: %w", a.cfg.AccessKeySecret, err)
	}
	cred, err := azblob.NewSharedKeyCredential(a.cfg.Account, string(key))
	if err != nil {
		return nil, fmt.Errorf("azure shared key credential: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", a.cfg.Account)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azure blob client init: %w", err)
	}
	return &containerAPI{client: client.ServiceClient().NewContainerClient(a.cfg.Container)}, nil
}

// containerAPI adapts an azblob container client to AzureBlobAPI.
type containerAPI struct {
	client *container.Client
}

func (c *containerAPI) UploadStream(ctx context.Context, blobName string, body io.Reader) error {
	_, err := c.client.NewBlockBlobClient(blobName).UploadStream(ctx, body, nil)
	return err
}

func (c *containerAPI) DownloadStream(ctx context.Context, blobName string) (io.ReadCloser, error) {
	resp, err := c.client.NewBlockBlobClient(blobName).DownloadStream(ctx, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *containerAPI) ListBlobs(ctx context.Context, prefix string) ([]ObjectMeta, error) {
	var out []ObjectMeta
	pager := c.client.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{Prefix: &prefix})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Segment.BlobItems {
			size := int64(0)
			if item.Properties != nil && item.Properties.ContentLength != nil {
				size = *item.Properties.ContentLength
			}
			out = append(out, ObjectMeta{Key: *item.Name, Size: size})
		}
	}
	return out, nil
}

func (c *containerAPI) DeleteBlob(ctx context.Context, blobName string) error {
	_, err := c.client.NewBlockBlobClient(blobName).Delete(ctx, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil
	}
	return err
}

func (a *AzureBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	cli, err := a.client(ctx)
	if err != nil {
		return nil, err
	}
	body, err := cli.DownloadStream(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	return compression.NewReader(body, a.cfg.Compression)
}

func (a *AzureBlobStore) PutLines(ctx context.Context, key string, lines [][]byte) error {
	cli, err := a.client(ctx)
	if err != nil {
		return err
	}

	var bufWriter io.Writer
	var file *os.File
	var buf *bytes.Buffer

	if a.cfg.BufferType == "disk" {
		f, err := os.CreateTemp("", "rewardcore-objectstore-azure-*")
		if err != nil {
			return fmt.Errorf("create temp file: %w", err)
		}
		defer os.Remove(f.Name())
		defer f.Close()
		file = f
		bufWriter = f
	} else {
		buf = &bytes.Buffer{}
		bufWriter = buf
	}

	comp, err := compression.NewWriter(bufWriter, a.cfg.Compression)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := comp.Write(line); err != nil {
			return fmt.Errorf("write line: %w", err)
		}
		if _, err := comp.Write([]byte("\n")); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}
	if err := comp.Close(); err != nil {
		return fmt.Errorf("close compressor: %w", err)
	}

	var reader io.Reader
	if file != nil {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return err
		}
		reader = file
	} else {
		reader = bytes.NewReader(buf.Bytes())
	}

	return cli.UploadStream(ctx, key, reader)
}

func (a *AzureBlobStore) List(ctx context.Context, prefix string) ([]ObjectMeta, error) {
	cli, err := a.client(ctx)
	if err != nil {
		return nil, err
	}
	return cli.ListBlobs(ctx, prefix)
}

func (a *AzureBlobStore) Delete(ctx context.Context, keys []string) error {
	cli, err := a.client(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := cli.DeleteBlob(ctx, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}
