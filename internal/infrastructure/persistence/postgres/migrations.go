// Package postgres implements the PostgreSQL persistence layer for the
// progression engine.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE MEMBERS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create member tables
-- Version: 001

-- Main members table
CREATE TABLE IF NOT EXISTS members (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    wallet VARCHAR(42) NOT NULL UNIQUE,
    username VARCHAR(100) NOT NULL,
    referrer_id UUID REFERENCES members(id) ON DELETE SET NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'active',
    joined_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_status CHECK (status IN ('active', 'suspended', 'left')),
    CONSTRAINT no_self_referral CHECK (referrer_id IS NULL OR referrer_id != id)
);

CREATE INDEX IF NOT EXISTS idx_members_wallet ON members(wallet);
CREATE INDEX IF NOT EXISTS idx_members_referrer ON members(referrer_id) WHERE referrer_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_members_status ON members(status);
CREATE INDEX IF NOT EXISTS idx_members_joined_at ON members(joined_at DESC);

-- Read model of progression metrics. Maintained by commission and referral
-- processing; the evaluation engine only reads it.
CREATE TABLE IF NOT EXISTS member_stats (
    member_id UUID PRIMARY KEY REFERENCES members(id) ON DELETE CASCADE,
    direct_recruits INTEGER NOT NULL DEFAULT 0,
    network_size INTEGER NOT NULL DEFAULT 0,
    total_earned NUMERIC(24,8) NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_counters CHECK (direct_recruits >= 0 AND network_size >= 0),
    CONSTRAINT valid_earnings CHECK (total_earned >= 0)
);

-- Commission log feeds the time-windowed earnings leaderboards.
CREATE TABLE IF NOT EXISTS commission_log (
    id BIGSERIAL PRIMARY KEY,
    member_id UUID NOT NULL REFERENCES members(id) ON DELETE CASCADE,
    amount NUMERIC(24,8) NOT NULL,
    source VARCHAR(50) NOT NULL DEFAULT '',
    occurred_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT positive_amount CHECK (amount >= 0)
);

CREATE INDEX IF NOT EXISTS idx_commission_log_member ON commission_log(member_id);
CREATE INDEX IF NOT EXISTS idx_commission_log_occurred ON commission_log(occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_commission_log_member_occurred ON commission_log(member_id, occurred_at DESC);

-- Recruitment log: one row per downline addition per upline member.
-- depth = 1 is a direct recruit; deeper rows feed network growth boards.
CREATE TABLE IF NOT EXISTS recruitment_log (
    id BIGSERIAL PRIMARY KEY,
    recruiter_id UUID NOT NULL REFERENCES members(id) ON DELETE CASCADE,
    recruit_id UUID NOT NULL REFERENCES members(id) ON DELETE CASCADE,
    depth INTEGER NOT NULL DEFAULT 1,
    occurred_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    UNIQUE(recruiter_id, recruit_id),
    CONSTRAINT valid_depth CHECK (depth >= 1)
);

CREATE INDEX IF NOT EXISTS idx_recruitment_log_recruiter ON recruitment_log(recruiter_id);
CREATE INDEX IF NOT EXISTS idx_recruitment_log_occurred ON recruitment_log(occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_recruitment_log_recruiter_depth ON recruitment_log(recruiter_id, depth);

-- Updated_at trigger function for automatic timestamp updates
CREATE OR REPLACE FUNCTION update_updated_at_column()
RETURNS TRIGGER AS $$
BEGIN
    NEW.updated_at = NOW();
    RETURN NEW;
END;
$$ language 'plpgsql';

DROP TRIGGER IF EXISTS update_members_updated_at ON members;
CREATE TRIGGER update_members_updated_at
    BEFORE UPDATE ON members
    FOR EACH ROW
    EXECUTE FUNCTION update_updated_at_column();
`

const migration001Down = `
DROP TRIGGER IF EXISTS update_members_updated_at ON members;
DROP FUNCTION IF EXISTS update_updated_at_column();
DROP TABLE IF EXISTS recruitment_log;
DROP TABLE IF EXISTS commission_log;
DROP TABLE IF EXISTS member_stats;
DROP TABLE IF EXISTS members;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE PROGRESSION
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create rank and achievement tables
-- Version: 002

-- Rank tier catalog. rank_order defines the hierarchy; all three
-- thresholds must be met simultaneously to qualify.
CREATE TABLE IF NOT EXISTS user_ranks (
    id VARCHAR(50) PRIMARY KEY,
    name VARCHAR(50) NOT NULL,
    badge_icon VARCHAR(100) NOT NULL DEFAULT '',
    badge_color VARCHAR(20) NOT NULL DEFAULT '',
    rank_order INTEGER NOT NULL UNIQUE,
    min_direct_recruits INTEGER NOT NULL DEFAULT 0,
    min_network_size INTEGER NOT NULL DEFAULT 0,
    min_total_earned NUMERIC(24,8) NOT NULL DEFAULT 0,
    perks JSONB NOT NULL DEFAULT '{"commissionMultiplier": 1.0}'::jsonb,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_thresholds CHECK (
        min_direct_recruits >= 0 AND min_network_size >= 0 AND min_total_earned >= 0
    )
);

CREATE INDEX IF NOT EXISTS idx_user_ranks_order ON user_ranks(rank_order);

-- Per-member rank state. current_rank_id is deliberately NOT a foreign
-- key: a manually pinned rank may be removed from the catalog, and the
-- next evaluation must see the dangling reference to fall back to
-- automatic computation.
CREATE TABLE IF NOT EXISTS member_rank_state (
    member_id UUID PRIMARY KEY REFERENCES members(id) ON DELETE CASCADE,
    current_rank_id VARCHAR(50) NOT NULL DEFAULT '',
    manual_override BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_member_rank_state_rank ON member_rank_state(current_rank_id);

-- Achievement catalog. Criteria are a JSON object {metric: threshold},
-- validated at evaluation time so one malformed row cannot poison a whole
-- pass. No column default: every insert must supply criteria explicitly.
CREATE TABLE IF NOT EXISTS achievements (
    id VARCHAR(50) PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    icon VARCHAR(100) NOT NULL DEFAULT '',
    category VARCHAR(30) NOT NULL,
    points INTEGER NOT NULL DEFAULT 0,
    criteria JSONB NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_category CHECK (category IN ('recruiting', 'earnings', 'network')),
    CONSTRAINT valid_points CHECK (points >= 0)
);

CREATE INDEX IF NOT EXISTS idx_achievements_active ON achievements(active) WHERE active;
CREATE INDEX IF NOT EXISTS idx_achievements_category ON achievements(category);

-- Unlocks are append-only. The composite primary key is the concurrency
-- guard: INSERT ... ON CONFLICT DO NOTHING lets exactly one of the
-- racing evaluations create the row.
CREATE TABLE IF NOT EXISTS achievement_unlocks (
    member_id UUID NOT NULL REFERENCES members(id) ON DELETE CASCADE,
    achievement_id VARCHAR(50) NOT NULL REFERENCES achievements(id) ON DELETE CASCADE,
    unlocked_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    progress_at_unlock INTEGER NOT NULL DEFAULT 100,

    PRIMARY KEY (member_id, achievement_id)
);

CREATE INDEX IF NOT EXISTS idx_achievement_unlocks_member ON achievement_unlocks(member_id);
CREATE INDEX IF NOT EXISTS idx_achievement_unlocks_unlocked ON achievement_unlocks(unlocked_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS achievement_unlocks;
DROP TABLE IF EXISTS achievements;
DROP TABLE IF EXISTS member_rank_state;
DROP TABLE IF EXISTS user_ranks;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE NOTIFICATIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create notification tables
-- Version: 003

CREATE TABLE IF NOT EXISTS notifications (
    id UUID PRIMARY KEY,
    member_id UUID NOT NULL REFERENCES members(id) ON DELETE CASCADE,
    type VARCHAR(30) NOT NULL,
    title VARCHAR(200) NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    data JSONB,
    is_read BOOLEAN NOT NULL DEFAULT FALSE,
    read_at TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_type CHECK (type IN ('rank_up', 'rank_changed_admin', 'achievement_unlocked'))
);

CREATE INDEX IF NOT EXISTS idx_notifications_member ON notifications(member_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_notifications_unread ON notifications(member_id) WHERE NOT is_read;

-- Transactional outbox. Entries are written in the same transaction as
-- the rank/unlock state change; the dispatcher delivers pending entries
-- after commit.
CREATE TABLE IF NOT EXISTS notification_outbox (
    id UUID PRIMARY KEY,
    member_id UUID NOT NULL REFERENCES members(id) ON DELETE CASCADE,
    kind VARCHAR(30) NOT NULL,
    title VARCHAR(200) NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    data JSONB,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    dispatched_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_outbox_status CHECK (status IN ('pending', 'sent', 'failed'))
);

CREATE INDEX IF NOT EXISTS idx_notification_outbox_pending ON notification_outbox(created_at) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_notification_outbox_member ON notification_outbox(member_id);
`

const migration003Down = `
DROP TABLE IF EXISTS notification_outbox;
DROP TABLE IF EXISTS notifications;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: CREATE LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
-- Migration: Create leaderboard snapshots
-- Version: 004

-- Historical snapshots written by the scheduler. Entries are stored as
-- JSON since they are only ever read back whole.
CREATE TABLE IF NOT EXISTS leaderboard_snapshots (
    id UUID PRIMARY KEY,
    metric VARCHAR(30) NOT NULL,
    period VARCHAR(20) NOT NULL,
    entries JSONB NOT NULL DEFAULT '[]'::jsonb,
    taken_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_metric CHECK (metric IN ('earnings', 'recruiters', 'network_growth')),
    CONSTRAINT valid_period CHECK (period IN ('all_time', 'weekly', 'monthly'))
);

CREATE INDEX IF NOT EXISTS idx_leaderboard_snapshots_board ON leaderboard_snapshots(metric, period, taken_at DESC);
`

const migration004Down = `
DROP TABLE IF EXISTS leaderboard_snapshots;
`
