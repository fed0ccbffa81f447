// Package azblob fetches release artifacts from azblob://container/blob URLs
// using an Azure Storage connection string.
package azblob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/adamancini/upkeep/internal/storage"
)

// Scheme is the URL scheme served by this transport.
const Scheme = "azblob"

// ErrBlobNotFound indicates the container or blob does not exist.
var ErrBlobNotFound = errors.New("azblob: blob not found")

// OpError describes a failed blob operation.
type OpError struct {
	Op      string
	Message string
	Reason  error
}

func (err OpError) Error() string {
	errStr := "azblob"
	if err.Op != "" {
		errStr += " " + err.Op
	}
	if err.Message != "" {
		errStr += ": " + err.Message
	}
	if err.Reason != nil {
		errStr += ": " + err.Reason.Error()
	}
	return errStr
}

func (err OpError) Unwrap() error {
	return err.Reason
}

const (
	OpConnect  = "Connect"
	OpDownload = "Download"
)

// DownloadAPI is the part of the blob client the transport needs.
type DownloadAPI interface {
	DownloadStream(ctx context.Context, containerName, blobName string, o *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error)
}

// Transport opens azblob:// artifact URLs.
type Transport struct {
	client DownloadAPI
}

// New creates a transport from a storage account connection string.
func New(connectionString string) (*Transport, error) {
	if connectionString == "" {
		return nil, OpError{Op: OpConnect, Message: "connection string is required"}
	}
	client, err := azblob.NewClientFromConnectionString(connectionString, &azblob.ClientOptions{})
	if err != nil {
		return nil, OpError{Op: OpConnect, Message: "invalid connection string", Reason: err}
	}
	return NewWithClient(client), nil
}

// NewWithClient creates a transport over an existing client.
func NewWithClient(client DownloadAPI) *Transport {
	return &Transport{client: client}
}

// Open streams the blob named by u.
func (t *Transport) Open(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	container, blob, err := storage.SplitObjectURL(u, Scheme)
	if err != nil {
		return nil, OpError{Op: OpDownload, Reason: err}
	}

	rsp, err := t.client.DownloadStream(ctx, container, blob, &azblob.DownloadStreamOptions{})
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, OpError{Op: OpDownload, Message: container + "/" + blob, Reason: ErrBlobNotFound}
		}
		return nil, OpError{Op: OpDownload, Message: container + "/" + blob, Reason: err}
	}
	if rsp.Body == nil {
		return nil, OpError{Op: OpDownload, Message: fmt.Sprintf("%s/%s: empty response", container, blob)}
	}
	return rsp.Body, nil
}
