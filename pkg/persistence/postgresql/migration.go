package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflow_definitions (
				name VARCHAR(255) PRIMARY KEY,
				workflow_json TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE workflow_executions (
				execution_id UUID PRIMARY KEY,
				workflow_name VARCHAR(255) NOT NULL,
				executed_at TIMESTAMP WITH TIME ZONE NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('IN_PROGRESS', 'SUCCESS', 'FAIL')),
				version BIGINT NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_workflow_executions_workflow_name ON workflow_executions(workflow_name);
			CREATE INDEX idx_workflow_executions_executed_at ON workflow_executions(executed_at);

			CREATE TABLE workflow_execution_steps (
				id UUID PRIMARY KEY,
				execution_id UUID NOT NULL REFERENCES workflow_executions(execution_id),
				node_id INTEGER NOT NULL,
				node_name VARCHAR(255) NOT NULL,
				request_url TEXT,
				request_body TEXT,
				request_headers TEXT,
				query_params TEXT,
				response TEXT,
				status_code INTEGER NOT NULL DEFAULT 0,
				application_id VARCHAR(255),
				idempotency_key TEXT,
				skipped BOOLEAN NOT NULL DEFAULT FALSE,
				attempt_count INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_execution_steps_execution ON workflow_execution_steps(execution_id);

			-- Serves the idempotency guard lookup.
			CREATE INDEX idx_workflow_execution_steps_idempotency
				ON workflow_execution_steps(application_id, node_name)
				WHERE NOT skipped;

			CREATE TABLE workflow_error_logs (
				id UUID PRIMARY KEY,
				execution_id UUID NOT NULL,
				workflow_name VARCHAR(255) NOT NULL,
				error_message TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
		`,
	}
}
