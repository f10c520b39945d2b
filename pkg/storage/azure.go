package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"go.uber.org/zap"

	"github.com/synergenius-fw/flow-weaver-sub000/pkg/compiler"
	fwerrors "github.com/synergenius-fw/flow-weaver-sub000/pkg/errors"
)

// blobArtifact is the stored wire shape of an artifact.
type blobArtifact struct {
	WorkflowName string `json:"workflowName"`
	FunctionName string `json:"functionName"`
	Source       string `json:"source"`
	IsAsync      bool   `json:"isAsync"`
	Checksum     string `json:"checksum"`
}

// AzureBlobStore implements ArtifactStore on Azure Blob Storage using
// shared keys. The client setup tolerates plain-HTTP endpoints so local
// Azurite instances work out of the box.
type AzureBlobStore struct {
	client        *azblob.Client
	containerName string
	logger        *zap.Logger
	containerInit bool
}

// NewAzureBlobStore creates an artifact store from a standard Azure storage
// connection string.
func NewAzureBlobStore(connectionString, containerName string, logger *zap.Logger) (*AzureBlobStore, error) {
	if connectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}
	if containerName == "" {
		return nil, fmt.Errorf("container name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	params := parseConnectionString(connectionString)
	accountName := params["AccountName"]
	accountKey := params["AccountKey"]
	serviceURL := params["BlobEndpoint"]
	if accountName == "" || accountKey == "" {
		return nil, fmt.Errorf("account name and key are required in the connection string")
	}
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net", accountName)
	}

	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create shared key credential: %w", err)
	}

	var clientOpts *azblob.ClientOptions
	if strings.HasPrefix(strings.ToLower(serviceURL), "http://") {
		clientOpts = &azblob.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				InsecureAllowCredentialWithHTTP: true,
			},
		}
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return &AzureBlobStore{
		client:        client,
		containerName: containerName,
		logger:        logger,
	}, nil
}

// blobPath places artifacts under a stable prefix keyed by checksum.
func blobPath(checksum string) string {
	return "artifacts/" + checksum + ".json"
}

// Put implements ArtifactStore.
func (s *AzureBlobStore) Put(ctx context.Context, artifact *compiler.Artifact) error {
	if artifact == nil {
		return fmt.Errorf("storage: artifact cannot be nil")
	}
	if artifact.Checksum == "" {
		return fmt.Errorf("storage: artifact checksum cannot be empty")
	}
	if err := s.ensureContainer(ctx); err != nil {
		return err
	}

	data, err := json.Marshal(blobArtifact{
		WorkflowName: artifact.WorkflowName,
		FunctionName: artifact.FunctionName,
		Source:       artifact.Source,
		IsAsync:      artifact.IsAsync,
		Checksum:     artifact.Checksum,
	})
	if err != nil {
		return fmt.Errorf("storage: marshal artifact: %w", err)
	}

	containerClient := s.client.ServiceClient().NewContainerClient(s.containerName)
	blobClient := containerClient.NewBlockBlobClient(blobPath(artifact.Checksum))

	_, err = blobClient.UploadBuffer(ctx, data, &azblob.UploadBufferOptions{
		Metadata: map[string]*string{
			"workflow": to.Ptr(artifact.WorkflowName),
			"function": to.Ptr(artifact.FunctionName),
		},
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: to.Ptr("application/json"),
		},
	})
	if err != nil {
		s.logger.Error("failed to upload artifact",
			zap.String("workflow", artifact.WorkflowName),
			zap.String("checksum", artifact.Checksum),
			zap.Error(err))
		return fmt.Errorf("storage: artifact upload failed: %w", err)
	}

	s.logger.Info("artifact uploaded",
		zap.String("workflow", artifact.WorkflowName),
		zap.String("checksum", artifact.Checksum),
		zap.Int("size_bytes", len(data)))
	return nil
}

// Get implements ArtifactStore.
func (s *AzureBlobStore) Get(ctx context.Context, checksum string) (*compiler.Artifact, error) {
	if checksum == "" {
		return nil, fmt.Errorf("storage: checksum is required")
	}

	containerClient := s.client.ServiceClient().NewContainerClient(s.containerName)
	blobClient := containerClient.NewBlobClient(blobPath(checksum))

	resp, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return nil, fmt.Errorf("storage: %w: %s", fwerrors.ErrArtifactNotFound, checksum)
		}
		return nil, fmt.Errorf("storage: failed to download artifact: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to read artifact data: %w", err)
	}

	var stored blobArtifact
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("storage: unmarshal artifact %s: %w", checksum, err)
	}
	return &compiler.Artifact{
		WorkflowName: stored.WorkflowName,
		FunctionName: stored.FunctionName,
		Source:       stored.Source,
		IsAsync:      stored.IsAsync,
		Checksum:     stored.Checksum,
	}, nil
}

// Exists implements ArtifactStore.
func (s *AzureBlobStore) Exists(ctx context.Context, checksum string) (bool, error) {
	if checksum == "" {
		return false, fmt.Errorf("storage: checksum is required")
	}
	containerClient := s.client.ServiceClient().NewContainerClient(s.containerName)
	blobClient := containerClient.NewBlobClient(blobPath(checksum))

	_, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return false, nil
		}
		return false, fmt.Errorf("storage: failed to check artifact: %w", err)
	}
	return true, nil
}

func (s *AzureBlobStore) ensureContainer(ctx context.Context) error {
	if s.containerInit {
		return nil
	}

	_, err := s.client.CreateContainer(ctx, s.containerName, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == "ContainerAlreadyExists" {
			s.containerInit = true
			return nil
		}
		if strings.Contains(strings.ToLower(err.Error()), "containeralreadyexists") {
			s.containerInit = true
			return nil
		}
		return fmt.Errorf("storage: failed to ensure container: %w", err)
	}

	s.containerInit = true
	return nil
}

func parseConnectionString(connectionString string) map[string]string {
	parts := strings.Split(connectionString, ";")
	params := make(map[string]string, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.Index(part, "=")
		if idx <= 0 {
			continue
		}
		params[part[:idx]] = part[idx+1:]
	}
	return params
}
