package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create targets table
			CREATE TABLE targets (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				url TEXT NOT NULL,
				method VARCHAR(10) NOT NULL CHECK (method IN ('GET', 'POST', 'PUT', 'PATCH', 'DELETE', 'HEAD')),
				headers JSONB,
				body_template TEXT,
				timeout_seconds INT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_targets_name ON targets(name);
			CREATE INDEX idx_targets_created_at ON targets(created_at);

			-- Create schedules table
			CREATE TABLE schedules (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				target_id UUID NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
				schedule_type VARCHAR(20) NOT NULL CHECK (schedule_type IN ('interval', 'cron')),
				interval_seconds INT,
				cron_expression VARCHAR(255),
				start_at TIMESTAMP WITH TIME ZONE NOT NULL,
				duration_seconds INT,
				max_runs INT,
				status VARCHAR(20) NOT NULL CHECK (status IN ('active', 'paused', 'completed')),
				runs_count INT NOT NULL DEFAULT 0,
				last_run_at TIMESTAMP WITH TIME ZONE,
				next_run_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_schedules_target_id ON schedules(target_id);
			CREATE INDEX idx_schedules_status ON schedules(status);
			CREATE INDEX idx_schedules_next_run_at ON schedules(next_run_at);

			-- Create runs table
			CREATE TABLE runs (
				id UUID PRIMARY KEY,
				schedule_id UUID NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
				target_id UUID NOT NULL,
				scheduled_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'running', 'succeeded', 'failed')),
				idempotency_key VARCHAR(512) NOT NULL,
				attempt_count INT NOT NULL DEFAULT 0,
				final_error TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE UNIQUE INDEX idx_runs_idempotency_key ON runs(idempotency_key);
			CREATE INDEX idx_runs_schedule_id ON runs(schedule_id);
			CREATE INDEX idx_runs_status ON runs(status);
			CREATE INDEX idx_runs_scheduled_at ON runs(scheduled_at);

			-- Create attempts table
			CREATE TABLE attempts (
				id UUID PRIMARY KEY,
				run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
				attempt_number INT NOT NULL,
				request_url TEXT NOT NULL,
				request_method VARCHAR(10) NOT NULL,
				request_headers JSONB,
				request_body TEXT,
				response_status INT,
				response_headers JSONB,
				response_body TEXT,
				error_class VARCHAR(20) NOT NULL,
				error_message TEXT,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (run_id, attempt_number)
			);

			CREATE INDEX idx_attempts_run_id ON attempts(run_id);
			CREATE INDEX idx_attempts_error_class ON attempts(error_class);
			CREATE INDEX idx_attempts_started_at ON attempts(started_at);
		`,
	}
}
