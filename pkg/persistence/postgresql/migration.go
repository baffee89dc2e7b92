package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create flows table
			CREATE TABLE flows (
				id UUID PRIMARY KEY,
				clinic_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_flows_clinic_id ON flows(clinic_id);
			CREATE INDEX idx_flows_active ON flows(active);
			CREATE INDEX idx_flows_created_at ON flows(created_at);
		`,
		2: `
			-- Executions keep their own graph snapshot, so they outlive flow deletion
			CREATE TABLE flow_executions (
				id UUID PRIMARY KEY,
				flow_id UUID NOT NULL,
				patient_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('in-progress', 'awaiting', 'paused', 'completed')),
				paused_status VARCHAR(50) NOT NULL DEFAULT '',
				current_node_id VARCHAR(255) NOT NULL,
				current_step JSONB,
				responses JSONB NOT NULL DEFAULT '{}',
				history JSONB NOT NULL DEFAULT '[]',
				graph JSONB NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				next_step_available_at TIMESTAMP WITH TIME ZONE,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_flow_executions_flow_id ON flow_executions(flow_id);
			CREATE INDEX idx_flow_executions_patient_id ON flow_executions(patient_id);
			CREATE INDEX idx_flow_executions_due ON flow_executions(next_step_available_at)
				WHERE status = 'awaiting';
		`,
		3: `
			-- Guarded updates compare the revision; status and node repeat on loops
			ALTER TABLE flow_executions ADD COLUMN revision BIGINT NOT NULL DEFAULT 0;
		`,
	}
}
