package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("client")

const driveFields = "id,name,mimeType,webViewLink,thumbnailLink,modifiedTime"

// DriveClient calls the Google Drive v3 REST API with the agency's access token.
type DriveClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	bulkhead   *resilience.Bulkhead
	cfg        resilience.Config
}

// NewDriveClient creates a new DriveClient. baseURL is usually
// https://www.googleapis.com/drive/v3.
func NewDriveClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *DriveClient {
	return &DriveClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		bulkhead:   resilience.NewBulkhead(cfg.MaxConcurrency),
		cfg:        cfg,
	}
}

type driveFileList struct {
	Files         []domain.DriveFile `json:"files"`
	NextPageToken string             `json:"nextPageToken"`
}

// ListFiles lists the non-trashed files of a folder, following pagination.
func (c *DriveClient) ListFiles(ctx context.Context, accessToken, folderID string) ([]domain.DriveFile, error) {
	ctx, span := tracer.Start(ctx, "DriveClient.ListFiles")
	defer span.End()
	span.SetAttributes(attribute.String("drive.folder_id", folderID))

	q := "trashed = false"
	if folderID != "" {
		q = fmt.Sprintf("'%s' in parents and trashed = false", folderID)
	}

	var files []domain.DriveFile
	pageToken := ""
	for {
		params := url.Values{}
		params.Set("q", q)
		params.Set("fields", "nextPageToken,files("+driveFields+")")
		params.Set("pageSize", "100")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var page driveFileList
		if err := c.get(ctx, accessToken, "/files?"+params.Encode(), "folder", folderID, &page); err != nil {
			return nil, err
		}
		files = append(files, page.Files...)
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}
	return files, nil
}

// GetFile fetches the metadata of one file.
func (c *DriveClient) GetFile(ctx context.Context, accessToken, fileID string) (*domain.DriveFile, error) {
	ctx, span := tracer.Start(ctx, "DriveClient.GetFile")
	defer span.End()
	span.SetAttributes(attribute.String("drive.file_id", fileID))

	var file domain.DriveFile
	path := fmt.Sprintf("/files/%s?fields=%s", url.PathEscape(fileID), url.QueryEscape(driveFields))
	if err := c.get(ctx, accessToken, path, "drive file", fileID, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// get performs an authenticated GET with bulkhead, breaker and retry, decoding
// the JSON body into out. 4xx responses are not retried.
func (c *DriveClient) get(ctx context.Context, accessToken, path, resource, id string, out any) error {
	if err := c.bulkhead.Acquire(ctx); err != nil {
		return err
	}
	defer c.bulkhead.Release()

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
			if err != nil {
				return resilience.Permanent(err)
			}
			req.Header.Set("Authorization", "Bearer "+accessToken)
			req.Header.Set("Accept", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusNotFound:
				return resilience.Permanent(&domain.ErrNotFound{Resource: resource, ID: id})
			case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
				return resilience.Permanent(&domain.ErrUnauthorized{Message: "google drive rejected the access token"})
			case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
				return fmt.Errorf("drive API returned status %d", resp.StatusCode)
			case resp.StatusCode != http.StatusOK:
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return resilience.Permanent(fmt.Errorf("drive API returned status %d: %s", resp.StatusCode, body))
			}
			return json.NewDecoder(resp.Body).Decode(out)
		})
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.ErrCircuitOpen{Service: domain.ProviderGoogleDrive}
	}
	var nf *domain.ErrNotFound
	if errors.As(err, &nf) {
		return nf
	}
	return &domain.ErrExternalService{Service: domain.ProviderGoogleDrive, Err: err}
}
