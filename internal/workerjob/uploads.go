package workerjob

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"stevedore/internal/apperrors"
	"stevedore/internal/storage"
	"stevedore/internal/store"
)

// Authorization error codes for upload validation.
const (
	CodeUploadsNotAllowed  = "UPLOADS_NOT_ALLOWED"
	CodeFolderNotEnabled   = "FOLDER_NOT_ENABLED"
	CodeFolderWriteDenied  = "FOLDER_WRITE_DENIED"
	CodeUploadPrefixDenied = "UPLOAD_PREFIX_DENIED"
)

// Service handles worker callback authorization and completion.
type Service struct {
	store     store.Store
	tokens    *TokenService
	presigner storage.Presigner
	logger    *slog.Logger
}

// NewService wires the worker job service.
func NewService(st store.Store, tokens *TokenService, presigner storage.Presigner, logger *slog.Logger) *Service {
	return &Service{store: st, tokens: tokens, presigner: presigner, logger: logger}
}

// Tokens exposes the token service for the HTTP auth guard.
func (s *Service) Tokens() *TokenService {
	return s.tokens
}

// ValidateAllowedUploads authorizes requested upload targets against the
// app's live folder permissions before a token is ever minted. Fails
// closed: one folder failing any check denies the whole batch, and only
// folders passing every check appear in the returned allow-map.
func (s *Service) ValidateAllowedUploads(ctx context.Context, appIdentifier string, requested map[string][]string) (map[string][]string, error) {
	app, err := s.store.Apps().GetEnabled(ctx, appIdentifier)
	if err != nil {
		return nil, err
	}
	if !hasPermission(app.DefaultFolderPermissions, store.PermWriteObjects) {
		return nil, apperrors.Forbidden(CodeUploadsNotAllowed,
			"app "+appIdentifier+" has no default write permission")
	}

	folderIDs := make([]string, 0, len(requested))
	for id := range requested {
		folderIDs = append(folderIDs, id)
	}
	sort.Strings(folderIDs)

	folders, err := s.store.Folders().GetMany(ctx, folderIDs)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, id := range folderIDs {
		if _, ok := folders[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.NotFoundMsg("folder",
			"folders not found: "+strings.Join(missing, ", "))
	}

	settings, err := s.store.Folders().AppSettings(ctx, appIdentifier, folderIDs)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string][]string, len(folderIDs))
	for _, id := range folderIDs {
		enabled := app.DefaultFolderEnabled
		perms := app.DefaultFolderPermissions
		if st, ok := settings[id]; ok {
			if st.Enabled != nil {
				enabled = *st.Enabled
			}
			if st.Permissions != nil {
				perms = st.Permissions
			}
		}
		if !enabled {
			return nil, apperrors.Forbidden(CodeFolderNotEnabled,
				"folder "+id+" is not enabled for app "+appIdentifier)
		}
		if !hasPermission(perms, store.PermWriteObjects) {
			return nil, apperrors.Forbidden(CodeFolderWriteDenied,
				"app "+appIdentifier+" may not write to folder "+id)
		}
		allowed[id] = requested[id]
	}
	return allowed, nil
}

func hasPermission(perms []store.Permission, want store.Permission) bool {
	for _, p := range perms {
		if p == want {
			return true
		}
	}
	return false
}

// UploadRequest is one file a worker wants to upload.
type UploadRequest struct {
	FolderID    string
	ObjectKey   string
	ContentType string
}

// Upload is one issued presigned upload.
type Upload struct {
	FolderID     string
	ObjectKey    string
	PresignedURL string
}

// RequestUploadURLs issues presigned PUT URLs for the requested files. Each
// object key must be a literal string-prefix match against at least one
// allowed prefix for its folder; no pattern or glob semantics. Output
// preserves input order.
func (s *Service) RequestUploadURLs(ctx context.Context, claims *Claims, files []UploadRequest) ([]Upload, error) {
	for _, f := range files {
		if f.ObjectKey == "" {
			return nil, apperrors.Validation("objectKey", "objectKey must not be empty")
		}
		if f.ContentType == "" {
			return nil, apperrors.Validation("contentType", "contentType must not be empty")
		}
		if !prefixAllowed(claims.AllowedUploads[f.FolderID], f.ObjectKey) {
			return nil, apperrors.Forbidden(CodeUploadPrefixDenied,
				"upload of "+f.ObjectKey+" to folder "+f.FolderID+" is not allowed")
		}
	}

	folderIDs := make([]string, 0, len(files))
	seen := map[string]bool{}
	for _, f := range files {
		if !seen[f.FolderID] {
			seen[f.FolderID] = true
			folderIDs = append(folderIDs, f.FolderID)
		}
	}
	folders, err := s.store.Folders().GetMany(ctx, folderIDs)
	if err != nil {
		return nil, err
	}

	uploads := make([]Upload, 0, len(files))
	for _, f := range files {
		folder, ok := folders[f.FolderID]
		if !ok {
			return nil, apperrors.NotFound("folder", f.FolderID)
		}
		location, err := s.store.Folders().StorageLocation(ctx, folder.StorageLocationID)
		if err != nil {
			return nil, err
		}

		storageKey := f.ObjectKey
		if location.Prefix != "" {
			storageKey = strings.TrimSuffix(location.Prefix, "/") + "/" + f.ObjectKey
		}

		url, err := s.presigner.PresignPut(ctx, location.Bucket, storageKey, f.ContentType)
		if err != nil {
			return nil, apperrors.Internal("storage.presignPut", err)
		}
		uploads = append(uploads, Upload{
			FolderID:     f.FolderID,
			ObjectKey:    f.ObjectKey,
			PresignedURL: url,
		})
	}

	s.logger.Debug("issued upload urls",
		"appIdentifier", claims.AppIdentifier, "jobId", claims.JobID(), "count", len(uploads))
	return uploads, nil
}

func prefixAllowed(prefixes []string, objectKey string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(objectKey, p) {
			return true
		}
	}
	return false
}
