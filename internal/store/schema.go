package store

// schema returns the DDL for driver. Postgres additionally enforces email
// uniqueness and the prediction foreign key; the memory driver relies on the
// checks in CreateUser.
func schema(driver string) []string {
	if driver == DriverPostgres {
		return []string{
			`CREATE TABLE IF NOT EXISTS users (
				id BIGSERIAL PRIMARY KEY,
				name TEXT NOT NULL,
				email TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				date_registered TIMESTAMP NOT NULL,
				is_admin BOOLEAN NOT NULL DEFAULT FALSE
			)`,
			`CREATE TABLE IF NOT EXISTS contacts (
				id BIGSERIAL PRIMARY KEY,
				name TEXT NOT NULL,
				email TEXT NOT NULL,
				message TEXT NOT NULL,
				date TIMESTAMP NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending'
			)`,
			`CREATE TABLE IF NOT EXISTS predictions (
				id BIGSERIAL PRIMARY KEY,
				user_id BIGINT NOT NULL REFERENCES users(id),
				city TEXT NOT NULL,
				population BIGINT,
				temperature_increase FLOAT,
				urban_density TEXT,
				infrastructure TEXT,
				risk_level TEXT,
				risk_score FLOAT,
				date TIMESTAMP NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS predictions_user_city ON predictions (user_id, city)`,
		}
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			name TEXT,
			email TEXT,
			password_hash TEXT,
			date_registered TIMESTAMP,
			is_admin BOOLEAN
		)`,
		`CREATE TABLE IF NOT EXISTS contacts (
			id BIGSERIAL PRIMARY KEY,
			name TEXT,
			email TEXT,
			message TEXT,
			date TIMESTAMP,
			status TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS predictions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT,
			city TEXT,
			population BIGINT,
			temperature_increase FLOAT,
			urban_density TEXT,
			infrastructure TEXT,
			risk_level TEXT,
			risk_score FLOAT,
			date TIMESTAMP
		)`,
	}
}
