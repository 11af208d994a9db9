package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// getPasswordFromSecretsManager retrieves the password from AWS Secrets Manager
func getPasswordFromSecretsManager(client secretsmanageriface.SecretsManagerAPI, secretArn string) (string, error) {
	result, err := client.GetSecretValue(&secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretArn),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret value: %v", err)
	}

	if result.SecretString == nil {
		return "", fmt.Errorf("secret value is nil")
	}

	return *result.SecretString, nil
}

// createTLSConfig trusts the CA bundle at caFile
func createTLSConfig(caFile string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate from %s: %v", caFile, err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	return &tls.Config{RootCAs: pool}, nil
}

// usernameOf returns the user part of a connection string, if any
func usernameOf(connectionString string) string {
	u, err := url.Parse(connectionString)
	if err != nil || u.User == nil {
		return ""
	}
	return u.User.Username()
}

// clientOptions builds the driver options for the configured cluster. The
// password is fetched separately so it never has to appear in the URI.
func clientOptions(config *Config, secrets secretsmanageriface.SecretsManagerAPI) (*options.ClientOptions, error) {
	db := config.AWS.DocumentDB
	if db.ConnectionString == "" {
		return nil, fmt.Errorf("no DocumentDB connection string configured")
	}

	opts := options.Client().ApplyURI(db.ConnectionString)

	if db.PasswordSecretArn != "" {
		password, err := getPasswordFromSecretsManager(secrets, db.PasswordSecretArn)
		if err != nil {
			return nil, fmt.Errorf("failed to get password from Secrets Manager: %v", err)
		}

		username := usernameOf(db.ConnectionString)
		if username == "" {
			return nil, fmt.Errorf("connection string has no username for the stored password")
		}
		opts.SetAuth(options.Credential{
			AuthMechanism: "SCRAM-SHA-1",
			AuthSource:    "admin",
			Username:      username,
			Password:      password,
		})
	}

	if db.CAFile != "" {
		tlsConfig, err := createTLSConfig(db.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %v", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	return opts, nil
}

// ConnectDocumentDB connects to the configured cluster and checks it responds
func ConnectDocumentDB(ctx context.Context, config *Config, logger logrus.FieldLogger) (*mongo.Client, error) {
	var secrets secretsmanageriface.SecretsManagerAPI
	if config.AWS.DocumentDB.PasswordSecretArn != "" {
		sess, err := session.NewSession(&aws.Config{Region: aws.String(config.AWS.Region)})
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS session: %v", err)
		}
		secrets = secretsmanager.New(sess)
	}

	opts, err := clientOptions(config, secrets)
	if err != nil {
		return nil, err
	}

	logger.WithField("database", config.AWS.DocumentDB.DatabaseName).Info("connecting to DocumentDB")
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DocumentDB: %v", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping DocumentDB: %v", err)
	}

	logger.Info("connected to DocumentDB")
	return client, nil
}
