package connectiondao

import "github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

// Build creates a new connection directory DAO using the standard table names
// for the given environment.
func Build(api dynamodbiface.DynamoDBAPI, env string) *DAO {
	return New(api, IdentityTableName(env), HandleTableName(env))
}

// IdentityTableName returns the forward (identity to handles) table name.
func IdentityTableName(env string) string {
	return env + "-timerhub--connections"
}

// HandleTableName returns the reverse (handle to identity) table name.
func HandleTableName(env string) string {
	return env + "-timerhub--handles"
}
