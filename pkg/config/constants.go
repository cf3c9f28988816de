package config

const EnvPrefix = "FESTPOS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	ServiceKindAPI       = "api"
	ServiceKindRegister  = "register"
	ServiceKindPublisher = "outbox-publisher"
)

const (
	EnvAppEnv  = "FESTPOS_APP_ENV"
	EnvAppPort = "FESTPOS_APP_PORT"

	EnvDBDSN  = "FESTPOS_DB_DSN"
	EnvDBHost = "FESTPOS_DB_HOST"
	EnvDBUser = "FESTPOS_DB_USER"
	EnvDBName = "FESTPOS_DB_NAME"

	EnvRedisURL = "FESTPOS_REDIS_URL"

	EnvJWTSecret = "FESTPOS_JWT_SECRET"
	EnvJWTIssuer = "FESTPOS_JWT_ISSUER"

	EnvTrackedProductIDs = "FESTPOS_TRACKED_PRODUCT_IDS"

	EnvRegisterAPIURL     = "FESTPOS_REGISTER_API_URL"
	EnvRegisterAPIToken   = "FESTPOS_REGISTER_API_TOKEN"
	EnvRegisterClearDelay = "FESTPOS_REGISTER_CLEAR_DELAY"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
