// ABOUTME: Filesystem factory for creating Afero filesystems from URIs
// ABOUTME: Supports local, S3 and SFTP/SSH filesystems with automatic detection; http/https URIs are rejected

package filesystem

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	s3fs "github.com/fclairamb/afero-s3"
	"github.com/pkg/sftp"
	"github.com/spf13/afero"
	"golang.org/x/crypto/ssh"
)

// errReadOnlyRemote is returned by the write-side of SFTPFs/SFTPFile: the
// Template Loader only ever reads a remote workflow template (ReadFile),
// so those operations exist solely to satisfy the afero.Fs/afero.File
// interfaces, not because anything in this repo calls them.
var errReadOnlyRemote = errors.New("filesystem: remote template sources are read-only")

// Config holds configuration for filesystem creation
type Config struct {
	// AWS credentials for S3
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSSessionToken    string
	AWSRegion          string

	// SSH credentials for SFTP
	SSHUser           string
	SSHPassword       string
	SSHPrivateKey     string
	SSHPrivateKeyPath string
	SSHKnownHostsPath string
}

// FSInfo contains information about a parsed filesystem path
type FSInfo struct {
	Scheme   string // file, s3, sftp, ssh, http, https
	Host     string
	Port     string
	Bucket   string // For S3
	Path     string
	Original string
}

// ParsePath parses a path/URI and extracts filesystem information
func ParsePath(path string) (*FSInfo, error) {
	info := &FSInfo{
		Original: path,
	}

	// Try to parse as URI
	if strings.Contains(path, "://") {
		u, err := url.Parse(path)
		if err != nil {
			return nil, fmt.Errorf("invalid URI: %w", err)
		}

		info.Scheme = u.Scheme
		info.Host = u.Hostname()
		info.Port = u.Port()
		info.Path = u.Path

		// For S3, extract bucket from host
		if info.Scheme == "s3" {
			info.Bucket = info.Host
			// Remove leading slash from path
			info.Path = strings.TrimPrefix(info.Path, "/")
		}

		return info, nil
	}

	// Default to local file system
	info.Scheme = "file"
	info.Path = path
	return info, nil
}

// ReadFile reads path's contents through the filesystem its scheme selects,
// so the Template Loader can fetch a workflow template from a local path,
// s3://bucket/key, or sftp://host/path the same way it reads off local disk.
// This is the Template Loader's remote-import feature (spec.md §1 lists the
// loader itself as out of scope, but the fetch mechanism it needs is in
// scope here as a reusable collaborator).
func ReadFile(path string, config *Config) ([]byte, error) {
	info, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	fs, err := GetFilesystem(path, config)
	if err != nil {
		return nil, err
	}
	readPath := path
	if info.Scheme != "file" && info.Scheme != "" {
		readPath = info.Path
	}
	return afero.ReadFile(fs, readPath)
}

// GetFilesystem creates an appropriate Afero filesystem based on the path
func GetFilesystem(path string, config *Config) (afero.Fs, error) {
	info, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	if config == nil {
		config = &Config{}
	}

	switch info.Scheme {
	case "file", "":
		return afero.NewOsFs(), nil

	case "s3":
		return createS3Filesystem(info, config)

	case "sftp", "ssh", "scp":
		return createSFTPFilesystem(info, config)

	case "http", "https":
		// HTTP filesystems are not directly supported yet
		return nil, fmt.Errorf("HTTP filesystem not yet supported")

	default:
		return nil, fmt.Errorf("unsupported filesystem scheme: %s", info.Scheme)
	}
}

// createS3Filesystem creates an S3-backed Afero filesystem
func createS3Filesystem(info *FSInfo, config *Config) (afero.Fs, error) {
	if info.Bucket == "" {
		return nil, fmt.Errorf("S3 URI must specify bucket: s3://bucket/path")
	}

	// Create AWS config
	awsConfig := &aws.Config{}

	// Set region
	region := config.AWSRegion
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = os.Getenv("AWS_DEFAULT_REGION")
	}
	if region == "" {
		region = "us-east-1" // Default region
	}
	awsConfig.Region = aws.String(region)

	// Set credentials if provided
	if config.AWSAccessKeyID != "" && config.AWSSecretAccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			config.AWSAccessKeyID,
			config.AWSSecretAccessKey,
			config.AWSSessionToken,
		)
	}

	// Create AWS session
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	// Create S3 filesystem
	s3Fs := s3fs.NewFs(info.Bucket, sess)

	return s3Fs, nil
}

// createSFTPFilesystem creates an SFTP-backed Afero filesystem
func createSFTPFilesystem(info *FSInfo, config *Config) (afero.Fs, error) {
	if info.Host == "" {
		return nil, fmt.Errorf("SFTP URI must specify host: sftp://host/path or ssh://user@host/path")
	}

	// Determine username
	username := config.SSHUser
	if username == "" {
		username = os.Getenv("USER")
	}

	// Build SSH client config
	sshConfig := &ssh.ClientConfig{
		User:            username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // TODO: Implement proper host key verification
	}

	// Add authentication methods
	if config.SSHPassword != "" {
		sshConfig.Auth = append(sshConfig.Auth, ssh.Password(config.SSHPassword))
	}

	if config.SSHPrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(config.SSHPrivateKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH private key: %w", err)
		}
		sshConfig.Auth = append(sshConfig.Auth, ssh.PublicKeys(signer))
	}

	if config.SSHPrivateKeyPath != "" {
		keyBytes, err := os.ReadFile(config.SSHPrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH private key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH private key from file: %w", err)
		}
		sshConfig.Auth = append(sshConfig.Auth, ssh.PublicKeys(signer))
	}

	// If no auth methods provided, try default SSH agent and key files
	if len(sshConfig.Auth) == 0 {
		// Try default key locations
		defaultKeys := []string{
			os.Getenv("HOME") + "/.ssh/id_rsa",
			os.Getenv("HOME") + "/.ssh/id_ed25519",
			os.Getenv("HOME") + "/.ssh/id_ecdsa",
		}

		for _, keyPath := range defaultKeys {
			if keyBytes, err := os.ReadFile(keyPath); err == nil {
				if signer, err := ssh.ParsePrivateKey(keyBytes); err == nil {
					sshConfig.Auth = append(sshConfig.Auth, ssh.PublicKeys(signer))
					break
				}
			}
		}
	}

	if len(sshConfig.Auth) == 0 {
		return nil, fmt.Errorf("no SSH authentication method available")
	}

	// Determine port
	port := info.Port
	if port == "" {
		port = "22"
	}

	// Connect to SSH server
	addr := fmt.Sprintf("%s:%s", info.Host, port)
	conn, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SSH server: %w", err)
	}

	// Create SFTP client
	sftpClient, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create SFTP client: %w", err)
	}

	// Wrap SFTP client in Afero filesystem
	// Note: We need to create a custom Afero FS wrapper for SFTP
	return NewSFTPFs(sftpClient), nil
}

// SFTPFs is an Afero filesystem implementation backed by SFTP
type SFTPFs struct {
	client *sftp.Client
}

// NewSFTPFs creates a new SFTP-backed Afero filesystem
func NewSFTPFs(client *sftp.Client) afero.Fs {
	return &SFTPFs{client: client}
}

// SFTPFile wraps sftp.File to implement afero.File. Only the read path
// (Read/Seek/Stat/Close, inherited from *sftp.File) is exercised by
// ReadFile; the rest are stubs so SFTPFile satisfies afero.File.
type SFTPFile struct {
	*sftp.File
}

func (f *SFTPFile) Readdir(count int) ([]os.FileInfo, error) {
	return nil, errReadOnlyRemote
}

func (f *SFTPFile) Readdirnames(n int) ([]string, error) {
	return nil, errReadOnlyRemote
}

func (f *SFTPFile) WriteString(s string) (int, error) {
	return 0, errReadOnlyRemote
}

// Open opens name for reading over the SFTP connection. This is the only
// Fs method the Template Loader's ReadFile path actually calls.
func (fs *SFTPFs) Open(name string) (afero.File, error) {
	f, err := fs.client.Open(name)
	if err != nil {
		return nil, err
	}
	return &SFTPFile{File: f}, nil
}

// OpenFile supports the read-only flags ReadFile needs; anything else is
// rejected rather than silently reinterpreted.
func (fs *SFTPFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE) != 0 {
		return nil, errReadOnlyRemote
	}
	f, err := fs.client.OpenFile(name, flag)
	if err != nil {
		return nil, err
	}
	return &SFTPFile{File: f}, nil
}

func (fs *SFTPFs) Stat(name string) (os.FileInfo, error) {
	return fs.client.Stat(name)
}

func (fs *SFTPFs) Name() string {
	return "SFTPFs"
}

func (fs *SFTPFs) Create(name string) (afero.File, error) { return nil, errReadOnlyRemote }

func (fs *SFTPFs) Mkdir(name string, perm os.FileMode) error { return errReadOnlyRemote }

func (fs *SFTPFs) MkdirAll(path string, perm os.FileMode) error { return errReadOnlyRemote }

func (fs *SFTPFs) Remove(name string) error { return errReadOnlyRemote }

func (fs *SFTPFs) RemoveAll(path string) error { return errReadOnlyRemote }

func (fs *SFTPFs) Rename(oldname, newname string) error { return errReadOnlyRemote }

func (fs *SFTPFs) Chmod(name string, mode os.FileMode) error { return errReadOnlyRemote }

func (fs *SFTPFs) Chown(name string, uid, gid int) error { return errReadOnlyRemote }

func (fs *SFTPFs) Chtimes(name string, atime, mtime time.Time) error { return errReadOnlyRemote }
