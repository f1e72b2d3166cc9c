package store

import "time"

// LocalFolderID is the local-only numeric surrogate key for a Folder row
// (spec §3, §9 "Folder-identifier confusion"). It is deliberately a
// different underlying type from identity.FolderID so the compiler
// refuses any implicit conversion between "the database's opinion of
// which row this is" and "the cryptographic identifier used everywhere
// else" — the defect the teacher's source actually had.
type LocalFolderID uint64

// User is spec §3's User entity.
type User struct {
	UserID      string `gorm:"primaryKey;column:user_id;size:64"`
	DisplayName string `gorm:"not null"`
	PublicKey   []byte `gorm:"not null"`
	CreatedAt   time.Time
	DeletedAt   *time.Time
}

func (User) TableName() string { return "users" }

// Folder is spec §3's Folder entity. FolderUniqueID is the hex encoding of
// the 128-bit identity.FolderID; DBID never leaves this table.
type Folder struct {
	DBID           LocalFolderID `gorm:"primaryKey;column:db_id;autoIncrement"`
	FolderUniqueID string        `gorm:"column:folder_unique_id;uniqueIndex;size:32;not null"`
	OwnerID        string        `gorm:"not null;index"`
	RootPath       string        `gorm:"not null"`
	State          string        `gorm:"not null"`
	Packing        bool          `gorm:"not null;default:false"`
	Redundancy     int           `gorm:"not null;default:0"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (Folder) TableName() string { return "folders" }

// File is spec §3's File entity, scoped to one Folder.
type File struct {
	FileID         uint64 `gorm:"primaryKey;column:file_id;autoIncrement"`
	FolderDBID     LocalFolderID `gorm:"column:folder_db_id;not null;index"`
	FolderUniqueID string        `gorm:"column:folder_unique_id;not null;index;size:32"`
	RelativePath   string        `gorm:"not null"`
	Size           int64         `gorm:"not null"`
	ContentHash    string        `gorm:"not null;size:64"`
	SegmentCount   int           `gorm:"not null;default:0"`
	Version        int           `gorm:"not null;default:1"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (File) TableName() string { return "files" }

// Segment is spec §3's Segment entity. InternalSubject is stored for
// bookkeeping only; it is never serialized into the wire payload or the
// share index (spec §3 invariant).
type Segment struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	FileID          uint64 `gorm:"not null;index"`
	FolderUniqueID  string `gorm:"not null;index;size:32"`
	SegmentIndex    uint32 `gorm:"not null"`
	Size            int64  `gorm:"not null"`
	PlaintextHash   string `gorm:"not null;size:64"`
	CiphertextHash  string `gorm:"size:64"`
	InternalSubject string `gorm:"not null"`
	UsenetSubject   string `gorm:"size:20"`
	MessageID       string `gorm:"index"`
	RedundancyGroup int    `gorm:"not null;default:0"`
	PackedWith      string // JSON array of file_ids sharing this segment, empty if none
	Attempts        int    `gorm:"not null;default:0"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (Segment) TableName() string { return "segments" }

// Share is spec §3's Share entity. EncryptedIndex is opaque to the store;
// once written it is never mutated (republishing creates a new row).
type Share struct {
	ShareID        string `gorm:"primaryKey;column:share_id;size:32"`
	FolderUniqueID string `gorm:"not null;index;size:32"`
	ShareType      string `gorm:"not null"`
	EncryptedIndex []byte `gorm:"not null"`
	OwnerID        string `gorm:"not null"`
	SaltShare      string `gorm:"column:salt_share;not null;size:32"` // PRIVATE only; empty otherwise
	CreatedAt      time.Time
	ExpiresAt      *time.Time
}

func (Share) TableName() string { return "shares" }

// AccessGrant is spec §3's AccessGrant entity, PRIVATE shares only. No
// plaintext user id is stored here, only the blinded commitment used in
// the ZK membership check (identity.GrantCommitment).
type AccessGrant struct {
	ID               uint64 `gorm:"primaryKey;autoIncrement"`
	ShareID          string `gorm:"not null;index;size:32"`
	AuthorizedUserID string `gorm:"not null"`
	Commitment       []byte `gorm:"not null"`
	CreatedAt        time.Time
}

func (AccessGrant) TableName() string { return "access_grants" }

// Session is an authenticated HTTP session (spec §6's HTTP/CLI surface is
// an external collaborator; a session is what that surface needs to keep
// a user signed in between requests once they've passed the challenge in
// LoginChallenge).
type Session struct {
	SessionToken string `gorm:"primaryKey;column:session_token;size:64"`
	CSRFToken    string `gorm:"column:csrf_token;size:64;not null"`
	UserID       string `gorm:"column:user_id;not null;index"`
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

func (Session) TableName() string { return "sessions" }

// LoginChallenge is the one outstanding nonce a user must sign with their
// Ed25519 private key to authenticate (spec §3: a User's only credential
// is its keypair, not a password).
type LoginChallenge struct {
	UserID    string `gorm:"primaryKey;column:user_id;size:64"`
	Nonce     []byte `gorm:"not null"`
	ExpiresAt time.Time
}

func (LoginChallenge) TableName() string { return "login_challenges" }

// AllModels lists every GORM model, used by tests that need a throwaway
// schema without going through the golang-migrate path.
func AllModels() []any {
	return []any{&User{}, &Folder{}, &File{}, &Segment{}, &Share{}, &AccessGrant{}, &Session{}, &LoginChallenge{}}
}
