package cerberus

import "time"

// SecretVersionSummary describes one version of a secret.
type SecretVersionSummary struct {
	ID               string    `json:"id"`
	SDBoxID          string    `json:"sdbox_id,omitempty"`
	Path             string    `json:"path"`
	Action           string    `json:"action"`
	Type             string    `json:"type"`
	SizeInBytes      int       `json:"size_in_bytes,omitempty"`
	VersionCreatedBy string    `json:"version_created_by"`
	VersionCreatedTS time.Time `json:"version_created_ts"`
	ActionPrincipal  string    `json:"action_principal,omitempty"`
	ActionTS         time.Time `json:"action_ts,omitempty"`
}

// SecretVersions is one page of a secret's version history, newest first.
type SecretVersions struct {
	HasNext              bool                   `json:"has_next"`
	NextOffset           int                    `json:"next_offset"`
	Limit                int                    `json:"limit"`
	Offset               int                    `json:"offset"`
	VersionCountInResult int                    `json:"version_count_in_result"`
	TotalVersionCount    int                    `json:"total_version_count"`
	Summaries            []SecretVersionSummary `json:"secure_data_version_summaries"`
}

// FileSummary describes a secure file without its content.
type FileSummary struct {
	SDBoxID       string    `json:"sdbox_id,omitempty"`
	Path          string    `json:"path"`
	Name          string    `json:"name"`
	SizeInBytes   int       `json:"size_in_bytes"`
	CreatedBy     string    `json:"created_by,omitempty"`
	CreatedTS     time.Time `json:"created_ts,omitempty"`
	LastUpdatedBy string    `json:"last_updated_by,omitempty"`
	LastUpdatedTS time.Time `json:"last_updated_ts,omitempty"`
}

// FileList is one page of secure files under a path.
type FileList struct {
	HasNext           bool          `json:"has_next"`
	NextOffset        int           `json:"next_offset"`
	Limit             int           `json:"limit"`
	Offset            int           `json:"offset"`
	FileCountInResult int           `json:"file_count_in_result"`
	TotalFileCount    int           `json:"total_file_count"`
	Summaries         []FileSummary `json:"secure_file_summaries"`
}

// File is a downloaded secure file.
type File struct {
	Name        string
	ContentType string
	Content     []byte
}

// Category groups safe deposit boxes, for example "Applications".
type Category struct {
	ID            string    `json:"id"`
	DisplayName   string    `json:"display_name"`
	Path          string    `json:"path"`
	CreatedBy     string    `json:"created_by,omitempty"`
	CreatedTS     time.Time `json:"created_ts,omitempty"`
	LastUpdatedBy string    `json:"last_updated_by,omitempty"`
	LastUpdatedTS time.Time `json:"last_updated_ts,omitempty"`
}

// Role is a permission level granted on a safe deposit box.
type Role struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	CreatedBy     string    `json:"created_by,omitempty"`
	CreatedTS     time.Time `json:"created_ts,omitempty"`
	LastUpdatedBy string    `json:"last_updated_by,omitempty"`
	LastUpdatedTS time.Time `json:"last_updated_ts,omitempty"`
}

// UserGroupPermission grants a role to a user group.
type UserGroupPermission struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	RoleID string `json:"role_id"`
}

// IAMPrincipalPermission grants a role to an IAM principal.
type IAMPrincipalPermission struct {
	ID              string `json:"id,omitempty"`
	IAMPrincipalARN string `json:"iam_principal_arn"`
	RoleID          string `json:"role_id"`
}

// SafeDepositBoxSummary is the short form returned when listing boxes.
type SafeDepositBoxSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	CategoryID string `json:"category_id"`
}

// SafeDepositBox is a container of secrets and files with its permissions.
// Server assigned fields are ignored on create and update.
type SafeDepositBox struct {
	ID                      string                   `json:"id,omitempty"`
	Name                    string                   `json:"name"`
	Path                    string                   `json:"path,omitempty"`
	CategoryID              string                   `json:"category_id"`
	Description             string                   `json:"description,omitempty"`
	Owner                   string                   `json:"owner,omitempty"`
	UserGroupPermissions    []UserGroupPermission    `json:"user_group_permissions,omitempty"`
	IAMPrincipalPermissions []IAMPrincipalPermission `json:"iam_principal_permissions,omitempty"`
	CreatedBy               string                   `json:"created_by,omitempty"`
	CreatedTS               *time.Time               `json:"created_ts,omitempty"`
	LastUpdatedBy           string                   `json:"last_updated_by,omitempty"`
	LastUpdatedTS           *time.Time               `json:"last_updated_ts,omitempty"`
}

// SDBMetadata is the administrative view of one safe deposit box.
type SDBMetadata struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	Path                 string            `json:"path"`
	Category             string            `json:"category"`
	Owner                string            `json:"owner"`
	Description          string            `json:"description"`
	CreatedBy            string            `json:"created_by"`
	CreatedTS            time.Time         `json:"created_ts"`
	LastUpdatedBy        string            `json:"last_updated_by,omitempty"`
	LastUpdatedTS        time.Time         `json:"last_updated_ts,omitempty"`
	UserGroupPermissions map[string]string `json:"user_group_permissions,omitempty"`
	IAMRolePermissions   map[string]string `json:"iam_role_permissions,omitempty"`
}

// Metadata is one page of safe deposit box metadata.
type Metadata struct {
	HasNext          bool          `json:"has_next"`
	NextOffset       int           `json:"next_offset"`
	Limit            int           `json:"limit"`
	Offset           int           `json:"offset"`
	SDBCountInResult int           `json:"sdb_count_in_result"`
	TotalSDBCount    int           `json:"total_sdbcount"`
	Boxes            []SDBMetadata `json:"safe_deposit_box_metadata"`
}
