package db

// SchemaSQL contains the database schema initialization SQL.
// Timestamps and queue scores are epoch milliseconds.
const SchemaSQL = `
    -- ==========================================================================
    -- JOB TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS user_id ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS chat_id ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS message ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON job TYPE string
        ASSERT $value IN ["pending", "questioning", "processing", "completed", "failed"];
    DEFINE FIELD IF NOT EXISTS context ON job TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS questions ON job TYPE array<object> DEFAULT [];
    REMOVE FIELD IF EXISTS questions.* ON job;
    DEFINE FIELD questions.* ON job TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS result ON job TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS error ON job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS retry_count ON job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS thread_id ON job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON job TYPE int;
    DEFINE FIELD IF NOT EXISTS started_at ON job TYPE option<int>;
    DEFINE FIELD IF NOT EXISTS completed_at ON job TYPE option<int>;

    DEFINE INDEX IF NOT EXISTS job_user ON job FIELDS user_id, created_at;
    DEFINE INDEX IF NOT EXISTS job_thread ON job FIELDS thread_id;
    DEFINE INDEX IF NOT EXISTS job_status ON job FIELDS status;

    -- ==========================================================================
    -- PENDING QUEUE (sorted by score, keyed by job id for idempotent add/remove)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS queue_entry SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS job ON queue_entry TYPE string;
    DEFINE FIELD IF NOT EXISTS score ON queue_entry TYPE int;

    DEFINE INDEX IF NOT EXISTS queue_score ON queue_entry FIELDS score;
`
