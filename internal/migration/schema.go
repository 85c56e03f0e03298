// internal/migration/schema.go
package migration

const createUsers = `
CREATE EXTENSION IF NOT EXISTS "pgcrypto";

CREATE TABLE IF NOT EXISTS users (
    id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    username       TEXT NOT NULL UNIQUE,
    email          TEXT NOT NULL UNIQUE,
    hash_password  TEXT NOT NULL,
    role           TEXT NOT NULL DEFAULT 'user',
    display_name   TEXT NOT NULL,
    avatar_url     TEXT,
    bio            TEXT,
    phone          TEXT,
    deleted_at     TIMESTAMPTZ,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
`

const createFriends = `
CREATE TABLE IF NOT EXISTS friends (
    user_a      UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    user_b      UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_a, user_b),
    CHECK (user_a < user_b)
);

CREATE INDEX IF NOT EXISTS idx_friends_user_b ON friends(user_b);
`

const createConversations = `
CREATE TABLE IF NOT EXISTS conversations (
    id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    type        TEXT NOT NULL CHECK (type IN ('direct', 'group')),
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS group_conversations (
    conversation_id  UUID PRIMARY KEY REFERENCES conversations(id) ON DELETE CASCADE,
    name             TEXT NOT NULL,
    created_by       UUID NOT NULL REFERENCES users(id),
    avatar_url       TEXT
);

CREATE TABLE IF NOT EXISTS participants (
    conversation_id       UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    user_id               UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    unread_count          INTEGER NOT NULL DEFAULT 0,
    last_seen_message_id  UUID,
    joined_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at            TIMESTAMPTZ,
    PRIMARY KEY (conversation_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_participants_user ON participants(user_id);
`

const createMessages = `
CREATE TABLE IF NOT EXISTS messages (
    id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    conversation_id  UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    sender_id        UUID NOT NULL REFERENCES users(id),
    reply_to_id      UUID REFERENCES messages(id),
    type             TEXT NOT NULL DEFAULT 'text',
    content          TEXT,
    file_url         TEXT,
    is_edited        BOOLEAN NOT NULL DEFAULT FALSE,
    deleted_at       TIMESTAMPTZ,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
    ON messages(conversation_id, created_at DESC);

CREATE TABLE IF NOT EXISTS last_messages (
    id               UUID NOT NULL,
    conversation_id  UUID NOT NULL UNIQUE REFERENCES conversations(id) ON DELETE CASCADE,
    sender_id        UUID NOT NULL,
    content          TEXT,
    created_at       TIMESTAMPTZ NOT NULL
);
`

// Builtin returns the migrations compiled into the binary, ordered by
// version.
func Builtin() []Migration {
	return []Migration{
		{Version: "20250601120000", Name: "create_users", SQL: createUsers},
		{Version: "20250601120100", Name: "create_friends", SQL: createFriends},
		{Version: "20250601120200", Name: "create_conversations", SQL: createConversations},
		{Version: "20250601120300", Name: "create_messages", SQL: createMessages},
	}
}
