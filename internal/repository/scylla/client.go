package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"phone-auth-service/internal/config"
	"phone-auth-service/internal/util"
)

// PreparedStatements holds the statements used by the user and OTP repositories.
type PreparedStatements struct {
	CreateUser        *gocql.Query
	CreateUserByPhone *gocql.Query
	GetUserByID       *gocql.Query
	GetUserByPhone    *gocql.Query
	UpdateUser        *gocql.Query

	CreateOtp     *gocql.Query
	GetOtpByPhone *gocql.Query
	UpdateOtp     *gocql.Query
}

type Client struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.Mutex
	isPrepared   bool
}

func NewClient(cfg *config.Config) (*Client, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &Client{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (c *Client) prepareStatements() error {
	c.prepareMutex.Lock()
	defer c.prepareMutex.Unlock()

	if c.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.CreateUser = c.Session.Query(`
        INSERT INTO users (
            user_bucket, user_id, phone, password_hash, status,
            error_login_count, refresh_token, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.CreateUserByPhone = c.Session.Query(`
        INSERT INTO users_by_phone (phone, user_bucket, user_id)
        VALUES (?, ?, ?)`)

	prepared.GetUserByID = c.Session.Query(`
        SELECT user_id, phone, password_hash, status,
            error_login_count, refresh_token, created_at, updated_at
        FROM users WHERE user_bucket = ? AND user_id = ?`)

	prepared.GetUserByPhone = c.Session.Query(`
        SELECT user_bucket, user_id FROM users_by_phone WHERE phone = ?`)

	prepared.UpdateUser = c.Session.Query(`
        UPDATE users SET password_hash = ?, status = ?, error_login_count = ?,
            refresh_token = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.CreateOtp = c.Session.Query(`
        INSERT INTO otp_challenges (
            phone_bucket, phone, challenge_id, otp_hash, remember_token,
            verify_token, request_count, error_count, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetOtpByPhone = c.Session.Query(`
        SELECT challenge_id, phone, otp_hash, remember_token, verify_token,
            request_count, error_count, created_at, updated_at
        FROM otp_challenges WHERE phone_bucket = ? AND phone = ?`)

	prepared.UpdateOtp = c.Session.Query(`
        UPDATE otp_challenges SET otp_hash = ?, remember_token = ?,
            verify_token = ?, request_count = ?, error_count = ?, updated_at = ?
        WHERE phone_bucket = ? AND phone = ?`)

	c.Prepared = prepared
	c.isPrepared = true

	util.Info("ScyllaDB prepared statements created")
	return nil
}

func (c *Client) Close() {
	if c.Session != nil {
		c.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (c *Client) HealthCheck(ctx context.Context) error {
	var clusterName string
	err := c.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}
	return nil
}

// ExecuteWithRetry retries transient write failures with a short linear backoff.
func (c *Client) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}
