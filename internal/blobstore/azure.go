package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/pkg/errors"
)

// AzureStore stores uploaded content in an Azure Blob Storage container.
type AzureStore struct {
	client    *azblob.Client
	container string
}

func NewAzureStore(accountName, accountKey, container string) (*AzureStore, error) {
	if accountName == "" || accountKey == "" || container == "" {
		return nil, errors.New("azure blob storage config missing")
	}

	cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Azure credential")
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create blob service client")
	}

	return &AzureStore{client: client, container: container}, nil
}

func (s *AzureStore) Put(ctx context.Context, path string, data []byte, contentType string) error {
	_, err := s.client.UploadStream(ctx, s.container, path, bytes.NewReader(data), &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return errors.Wrap(err, "failed to upload to Azure Blob")
	}
	return nil
}

func (s *AzureStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.blobClient(path).GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "failed to check blob existence")
	}
	return true, nil
}

// TemporaryURL returns a read-only SAS URL valid for ttl.
func (s *AzureStore) TemporaryURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	_ = ctx // SAS URLs are signed locally, no round trip
	url, err := s.blobClient(path).GetSASURL(
		sas.BlobPermissions{Read: true},
		time.Now().UTC().Add(ttl),
		nil,
	)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign blob URL")
	}
	return url, nil
}

func (s *AzureStore) blobClient(path string) *blob.Client {
	return s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(path)
}
