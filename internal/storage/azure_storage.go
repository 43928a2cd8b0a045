package storage

import (
	"context"
	"fmt"

	apperrors "go-qr-scanner/internal/errors"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// blobDownloader is the part of *azblob.Client the fetcher uses
type blobDownloader interface {
	DownloadStream(ctx context.Context, containerName string, blobName string, o *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error)
}

// AzureBlobFetcher reads images from Azure Blob Storage
type AzureBlobFetcher struct {
	client   blobDownloader
	maxBytes int64
}

// NewAzureBlobFetcher authenticates with a shared key
func NewAzureBlobFetcher(accountName string, accountKey string) (*AzureBlobFetcher, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid azure storage credentials", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to create azure blob client", err)
	}

	return newAzureBlobFetcher(client), nil
}

func newAzureBlobFetcher(client blobDownloader) *AzureBlobFetcher {
	return &AzureBlobFetcher{client: client, maxBytes: DefaultMaxImageBytes}
}

// FetchImage downloads the blob addressed by blobURL, e.g.
// https://account.blob.core.windows.net/container/path/image.png
func (s *AzureBlobFetcher) FetchImage(ctx context.Context, blobURL string) ([]byte, error) {
	parts, err := azblob.ParseURL(blobURL)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid blob URL", err)
	}
	if parts.ContainerName == "" || parts.BlobName == "" {
		return nil, apperrors.NewValidationError("blob URL must name a container and a blob", nil)
	}

	resp, err := s.client.DownloadStream(ctx, parts.ContainerName, parts.BlobName, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, apperrors.NewNotFoundError("blob not found", err)
		}
		return nil, apperrors.NewNetworkError("blob download failed", err)
	}
	defer resp.Body.Close()

	return readLimited(resp.Body, s.maxBytes)
}
