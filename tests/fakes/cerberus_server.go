package fakes

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// TokenHeader is the header the fake server authenticates requests with.
const TokenHeader = "X-Cerberus-Token"

// SDB is the fake server's safe deposit box record.
type SDB struct {
	ID                      string                   `json:"id"`
	Name                    string                   `json:"name"`
	Path                    string                   `json:"path"`
	CategoryID              string                   `json:"category_id"`
	Description             string                   `json:"description,omitempty"`
	Owner                   string                   `json:"owner,omitempty"`
	UserGroupPermissions    []map[string]interface{} `json:"user_group_permissions,omitempty"`
	IAMPrincipalPermissions []map[string]interface{} `json:"iam_principal_permissions,omitempty"`
	CreatedTS               string                   `json:"created_ts,omitempty"`
	LastUpdatedTS           string                   `json:"last_updated_ts,omitempty"`
	CreatedBy               string                   `json:"created_by,omitempty"`
	LastUpdatedBy           string                   `json:"last_updated_by,omitempty"`
}

type secretVersion struct {
	id      string
	data    map[string]interface{}
	created time.Time
	action  string
}

// Server is an in-memory Cerberus API over httptest. It implements the
// secret, secure file, category, role, safe deposit box, metadata and
// identity endpoints closely enough to exercise the client.
type Server struct {
	*httptest.Server

	// Token, when set, must be sent in TokenHeader on every non-auth request.
	Token string
	// AuthToken is handed out by the identity endpoints.
	AuthToken string
	// LeaseSeconds is the lease of AuthToken.
	LeaseSeconds int64

	mu          sync.Mutex
	secrets     map[string][]secretVersion
	files       map[string][]byte
	sdbs        map[string]*SDB
	categories  []map[string]interface{}
	roles       []map[string]interface{}
	failNext    int
	failStatus  int
	lastAuth    map[string]interface{}
	lastHeaders http.Header
	nextID      int

	requests  atomic.Int32
	authCalls atomic.Int32
}

// NewServer starts a fake server with one category and the standard roles.
func NewServer() *Server {
	s := &Server{
		AuthToken:    "s.fake-auth-token",
		LeaseSeconds: 3600,
		secrets:      map[string][]secretVersion{},
		files:        map[string][]byte{},
		sdbs:         map[string]*SDB{},
		categories: []map[string]interface{}{
			{"id": "cat-app", "display_name": "Applications", "path": "app"},
			{"id": "cat-shared", "display_name": "Shared", "path": "shared"},
		},
		roles: []map[string]interface{}{
			{"id": "role-owner", "name": "owner"},
			{"id": "role-write", "name": "write"},
			{"id": "role-read", "name": "read"},
		},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// FailNext makes the next n requests answer with status.
func (s *Server) FailNext(n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
	s.failStatus = status
}

// Requests returns how many requests the server received.
func (s *Server) Requests() int { return int(s.requests.Load()) }

// AuthCalls returns how many identity authentications the server handled.
func (s *Server) AuthCalls() int { return int(s.authCalls.Load()) }

// LastAuthRequest returns the body of the last IAM principal auth request.
func (s *Server) LastAuthRequest() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuth
}

// LastHeaders returns the headers of the most recent request.
func (s *Server) LastHeaders() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeaders.Clone()
}

// PutSecret seeds a secret without going through the API.
func (s *Server) PutSecret(path string, data map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeSecretLocked(strings.Trim(path, "/"), data)
}

// PutFile seeds a secure file without going through the API.
func (s *Server) PutFile(path string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[strings.Trim(path, "/")] = append([]byte(nil), content...)
}

// PutSDB seeds a safe deposit box and returns it.
func (s *Server) PutSDB(name, categoryID string) *SDB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createSDBLocked(&SDB{Name: name, CategoryID: categoryID, Owner: "Lst-fake"})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)

	s.mu.Lock()
	s.lastHeaders = r.Header.Clone()
	if s.failNext > 0 {
		s.failNext--
		status := s.failStatus
		s.mu.Unlock()
		writeJSON(w, status, map[string]interface{}{"errors": []string{"injected failure"}})
		return
	}
	s.mu.Unlock()

	if strings.HasPrefix(r.URL.Path, "/v2/auth/") {
		s.handleAuth(w, r)
		return
	}

	if s.Token != "" && r.Header.Get(TokenHeader) != s.Token {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"errors": []string{"permission denied"}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/v1/secret-versions/"):
		s.handleSecretVersions(w, r, strings.Trim(strings.TrimPrefix(path, "/v1/secret-versions/"), "/"))
	case strings.HasPrefix(path, "/v1/secret/"):
		s.handleSecret(w, r, strings.Trim(strings.TrimPrefix(path, "/v1/secret/"), "/"))
	case strings.HasPrefix(path, "/v1/secure-files/"):
		s.handleFileList(w, r, strings.Trim(strings.TrimPrefix(path, "/v1/secure-files/"), "/"))
	case strings.HasPrefix(path, "/v1/secure-file/"):
		s.handleFile(w, r, strings.Trim(strings.TrimPrefix(path, "/v1/secure-file/"), "/"))
	case path == "/v1/category":
		writeJSON(w, http.StatusOK, s.categories)
	case path == "/v1/role":
		writeJSON(w, http.StatusOK, s.roles)
	case path == "/v1/metadata":
		s.handleMetadata(w, r)
	case strings.HasPrefix(path, "/v2/safe-deposit-box"):
		s.handleSDB(w, r, strings.Trim(strings.TrimPrefix(path, "/v2/safe-deposit-box"), "/"))
	default:
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"errors": []string{}})
	}
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.authCalls.Add(1)

	grant := map[string]interface{}{
		"client_token":   s.AuthToken,
		"lease_duration": s.LeaseSeconds,
		"policies":       []string{"fake-policy"},
		"metadata":       map[string]string{"is_admin": "false"},
		"renewable":      false,
	}

	switch r.URL.Path {
	case "/v2/auth/iam-principal":
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": []string{"malformed request"}})
			return
		}
		s.mu.Lock()
		s.lastAuth = body
		s.mu.Unlock()
		plaintext, _ := json.Marshal(grant)
		writeJSON(w, http.StatusOK, map[string]string{"auth_data": base64.StdEncoding.EncodeToString(plaintext)})
	case "/v2/auth/sts-identity":
		if !strings.HasPrefix(r.Header.Get("Authorization"), "AWS4-HMAC-SHA256 ") || r.Header.Get("X-Amz-Date") == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
				"error_id": "sts-1",
				"errors":   []map[string]interface{}{{"code": 99240, "message": "signature missing"}},
			})
			return
		}
		writeJSON(w, http.StatusOK, grant)
	default:
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"errors": []string{}})
	}
}

func (s *Server) handleSecret(w http.ResponseWriter, r *http.Request, path string) {
	switch r.Method {
	case http.MethodGet:
		if r.URL.Query().Get("list") == "true" {
			keys := s.childrenLocked(path)
			if len(keys) == 0 {
				writeJSON(w, http.StatusNotFound, map[string]interface{}{"errors": []string{}})
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{"keys": keys}})
			return
		}
		versions, ok := s.secrets[path]
		if !ok || len(versions) == 0 || versions[len(versions)-1].data == nil {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{"errors": []string{}})
			return
		}
		version := versions[len(versions)-1]
		if id := r.URL.Query().Get("versionId"); id != "" && id != "CURRENT" {
			found := false
			for _, v := range versions {
				if v.id == id {
					version, found = v, true
				}
			}
			if !found {
				writeJSON(w, http.StatusNotFound, map[string]interface{}{"errors": []string{"version not found"}})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": version.data})
	case http.MethodPost:
		var data map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": []string{"malformed body"}})
			return
		}
		s.writeSecretLocked(path, data)
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if versions, ok := s.secrets[path]; ok {
			s.nextID++
			s.secrets[path] = append(versions, secretVersion{id: fmt.Sprintf("v-%d", s.nextID), created: time.Now(), action: "DELETE"})
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) writeSecretLocked(path string, data map[string]interface{}) {
	s.nextID++
	action := "CREATE"
	if len(s.secrets[path]) > 0 {
		action = "UPDATE"
	}
	copied := make(map[string]interface{}, len(data))
	for k, v := range data {
		copied[k] = v
	}
	s.secrets[path] = append(s.secrets[path], secretVersion{
		id:      fmt.Sprintf("v-%d", s.nextID),
		data:    copied,
		created: time.Now(),
		action:  action,
	})
}

// childrenLocked lists the immediate children of prefix. Folders end in "/".
func (s *Server) childrenLocked(prefix string) []string {
	prefix = strings.Trim(prefix, "/") + "/"
	seen := map[string]bool{}
	for path, versions := range s.secrets {
		if len(versions) == 0 || versions[len(versions)-1].data == nil {
			continue
		}
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		rest := strings.TrimPrefix(path, prefix)
		if i := strings.Index(rest, "/"); i >= 0 {
			seen[rest[:i+1]] = true
		} else {
			seen[rest] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Server) handleSecretVersions(w http.ResponseWriter, r *http.Request, path string) {
	versions := s.secrets[path]
	summaries := make([]map[string]interface{}, 0, len(versions))
	for i := len(versions) - 1; i >= 0; i-- {
		v := versions[i]
		summaries = append(summaries, map[string]interface{}{
			"id":                 v.id,
			"path":               path,
			"action":             v.action,
			"type":               "OBJECT",
			"version_created_by": "fake",
			"version_created_ts": v.created.UTC().Format(time.RFC3339),
		})
	}
	page, limit, offset, hasNext := paginate(r, summaries)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"has_next":                      hasNext,
		"next_offset":                   offset + len(page),
		"limit":                         limit,
		"offset":                        offset,
		"version_count_in_result":       len(page),
		"total_version_count":           len(summaries),
		"secure_data_version_summaries": page,
	})
}

func (s *Server) handleFileList(w http.ResponseWriter, r *http.Request, prefix string) {
	var names []string
	for path := range s.files {
		if strings.HasPrefix(path, prefix+"/") || prefix == "" {
			names = append(names, path)
		}
	}
	sort.Strings(names)
	summaries := make([]map[string]interface{}, 0, len(names))
	for _, path := range names {
		summaries = append(summaries, map[string]interface{}{
			"path":          path,
			"name":          path[strings.LastIndex(path, "/")+1:],
			"size_in_bytes": len(s.files[path]),
		})
	}
	page, limit, offset, hasNext := paginate(r, summaries)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"has_next":              hasNext,
		"next_offset":           offset + len(page),
		"limit":                 limit,
		"offset":                offset,
		"file_count_in_result":  len(page),
		"total_file_count":      len(summaries),
		"secure_file_summaries": page,
	})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request, path string) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		content, ok := s.files[path]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{"errors": []string{}})
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, path[strings.LastIndex(path, "/")+1:]))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(content)
		}
	case http.MethodPost:
		file, _, err := r.FormFile("file-content")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": []string{"missing file-content"}})
			return
		}
		defer func() { _ = file.Close() }()
		content, err := io.ReadAll(file)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": []string{"unreadable file-content"}})
			return
		}
		s.files[path] = content
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		delete(s.files, path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	ids := make([]string, 0, len(s.sdbs))
	for id := range s.sdbs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	entries := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		sdb := s.sdbs[id]
		entries = append(entries, map[string]interface{}{
			"id":          sdb.ID,
			"name":        sdb.Name,
			"path":        sdb.Path,
			"category":    s.categoryNameLocked(sdb.CategoryID),
			"owner":       sdb.Owner,
			"description": sdb.Description,
			"created_by":  sdb.CreatedBy,
			"created_ts":  sdb.CreatedTS,
		})
	}
	page, limit, offset, hasNext := paginate(r, entries)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"has_next":                  hasNext,
		"next_offset":               offset + len(page),
		"limit":                     limit,
		"offset":                    offset,
		"sdb_count_in_result":       len(page),
		"total_sdbcount":            len(entries),
		"safe_deposit_box_metadata": page,
	})
}

func (s *Server) handleSDB(w http.ResponseWriter, r *http.Request, id string) {
	notFound := func() {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error_id": fmt.Sprintf("err-%d", time.Now().UnixNano()),
			"errors":   []map[string]interface{}{{"code": 99228, "message": "The specified safe deposit box was not found."}},
		})
	}

	switch {
	case id == "" && r.Method == http.MethodGet:
		ids := make([]string, 0, len(s.sdbs))
		for k := range s.sdbs {
			ids = append(ids, k)
		}
		sort.Strings(ids)
		out := make([]map[string]interface{}, 0, len(ids))
		for _, k := range ids {
			sdb := s.sdbs[k]
			out = append(out, map[string]interface{}{"id": sdb.ID, "name": sdb.Name, "path": sdb.Path, "category_id": sdb.CategoryID})
		}
		writeJSON(w, http.StatusOK, out)
	case id == "" && r.Method == http.MethodPost:
		var sdb SDB
		if err := json.NewDecoder(r.Body).Decode(&sdb); err != nil || strings.TrimSpace(sdb.Name) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error_id": "create-1",
				"errors":   []map[string]interface{}{{"code": 99203, "message": "The safe deposit box name may not be blank."}},
			})
			return
		}
		writeJSON(w, http.StatusCreated, s.createSDBLocked(&sdb))
	case r.Method == http.MethodGet:
		sdb, ok := s.sdbs[id]
		if !ok {
			notFound()
			return
		}
		writeJSON(w, http.StatusOK, sdb)
	case r.Method == http.MethodPut:
		sdb, ok := s.sdbs[id]
		if !ok {
			notFound()
			return
		}
		var update SDB
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": []string{"malformed body"}})
			return
		}
		sdb.Description = update.Description
		if update.Owner != "" {
			sdb.Owner = update.Owner
		}
		sdb.UserGroupPermissions = update.UserGroupPermissions
		sdb.IAMPrincipalPermissions = update.IAMPrincipalPermissions
		sdb.LastUpdatedTS = time.Now().UTC().Format(time.RFC3339)
		writeJSON(w, http.StatusOK, sdb)
	case r.Method == http.MethodDelete:
		if _, ok := s.sdbs[id]; !ok {
			notFound()
			return
		}
		delete(s.sdbs, id)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) createSDBLocked(sdb *SDB) *SDB {
	s.nextID++
	sdb.ID = fmt.Sprintf("sdb-%d", s.nextID)
	slug := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(sdb.Name), " ", "-"))
	sdb.Path = s.categoryPathLocked(sdb.CategoryID) + "/" + slug + "/"
	now := time.Now().UTC().Format(time.RFC3339)
	sdb.CreatedTS, sdb.LastUpdatedTS = now, now
	sdb.CreatedBy, sdb.LastUpdatedBy = "fake", "fake"
	s.sdbs[sdb.ID] = sdb
	return sdb
}

func (s *Server) categoryPathLocked(id string) string {
	for _, c := range s.categories {
		if c["id"] == id {
			return c["path"].(string)
		}
	}
	return "app"
}

func (s *Server) categoryNameLocked(id string) string {
	for _, c := range s.categories {
		if c["id"] == id {
			return c["display_name"].(string)
		}
	}
	return ""
}

func paginate(r *http.Request, items []map[string]interface{}) ([]map[string]interface{}, int, int, bool) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 100
	}
	if offset > len(items) {
		offset = len(items)
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end], limit, offset, end < len(items)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
