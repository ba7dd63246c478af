// Package cloud provisions paid-plan resources through AWS: RDS for
// postgres databases, ElastiCache for redis services, and S3 for build
// artifacts.
package cloud

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/growifyai/blueprint/internal/manifest"
)

const (
	dbAvailableTimeout    = 20 * time.Minute
	cacheAvailableTimeout = 20 * time.Minute
)

// Provisioner creates and destroys cloud resources for paid plans.
type Provisioner struct {
	rds      *rds.Client
	cache    *elasticache.Client
	uploader *manager.Uploader
	log      *logrus.Entry
}

// NewProvisioner builds a provisioner from the default AWS config chain
// (env vars, shared config, instance metadata).
func NewProvisioner(ctx context.Context) (*Provisioner, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return &Provisioner{
		rds:      rds.NewFromConfig(cfg),
		cache:    elasticache.NewFromConfig(cfg),
		uploader: manager.NewUploader(s3.NewFromConfig(cfg)),
		log:      logrus.WithField("component", "cloud"),
	}, nil
}

// instanceClass maps a plan to an RDS instance class.
func instanceClass(plan string) string {
	switch plan {
	case manifest.PlanStandard:
		return "db.t3.medium"
	case manifest.PlanPro:
		return "db.m5.large"
	default:
		return "db.t3.micro"
	}
}

// cacheNodeType maps a plan to an ElastiCache node type.
func cacheNodeType(plan string) string {
	switch plan {
	case manifest.PlanStandard:
		return "cache.t3.medium"
	case manifest.PlanPro:
		return "cache.m5.large"
	default:
		return "cache.t3.micro"
	}
}

// CreateDatabase provisions an RDS postgres instance for the
// declaration, waits until it is available, and returns its connection
// info.
func (p *Provisioner) CreateDatabase(ctx context.Context, db manifest.Database, password string) (manifest.ConnectionInfo, error) {
	p.log.WithField("database", db.Name).Info("creating rds instance")

	input := &rds.CreateDBInstanceInput{
		DBInstanceIdentifier: aws.String(db.Name),
		DBName:               aws.String(db.DatabaseName),
		MasterUsername:       aws.String(db.User),
		MasterUserPassword:   aws.String(password),
		Engine:               aws.String("postgres"),
		DBInstanceClass:      aws.String(instanceClass(db.Plan)),
		AllocatedStorage:     aws.Int32(20),
		PubliclyAccessible:   aws.Bool(len(db.IPAllowList) > 0),
	}
	if db.PostgresMajorVersion != "" {
		input.EngineVersion = aws.String(db.PostgresMajorVersion)
	}

	if _, err := p.rds.CreateDBInstance(ctx, input); err != nil {
		return manifest.ConnectionInfo{}, fmt.Errorf("failed to create db instance %s: %w", db.Name, err)
	}

	describe := &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: aws.String(db.Name),
	}

	waiter := rds.NewDBInstanceAvailableWaiter(p.rds)
	if err := waiter.Wait(ctx, describe, dbAvailableTimeout); err != nil {
		return manifest.ConnectionInfo{}, fmt.Errorf("db instance %s did not become available: %w", db.Name, err)
	}

	out, err := p.rds.DescribeDBInstances(ctx, describe)
	if err != nil {
		return manifest.ConnectionInfo{}, fmt.Errorf("failed to describe db instance %s: %w", db.Name, err)
	}
	if len(out.DBInstances) == 0 || out.DBInstances[0].Endpoint == nil {
		return manifest.ConnectionInfo{}, fmt.Errorf("db instance %s has no endpoint", db.Name)
	}

	ep := out.DBInstances[0].Endpoint
	return manifest.ConnectionInfo{
		Host:     aws.ToString(ep.Address),
		Port:     int(aws.ToInt32(ep.Port)),
		User:     db.User,
		Password: password,
		Database: db.DatabaseName,
	}, nil
}

// DeleteDatabase tears down an RDS instance without a final snapshot.
func (p *Provisioner) DeleteDatabase(ctx context.Context, name string) error {
	p.log.WithField("database", name).Info("deleting rds instance")

	_, err := p.rds.DeleteDBInstance(ctx, &rds.DeleteDBInstanceInput{
		DBInstanceIdentifier: aws.String(name),
		SkipFinalSnapshot:    aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to delete db instance %s: %w", name, err)
	}
	return nil
}

// CreateRedis provisions a single-node ElastiCache cluster for a
// redis-type service and returns its endpoint.
func (p *Provisioner) CreateRedis(ctx context.Context, svc manifest.Service) (manifest.Endpoint, error) {
	p.log.WithField("service", svc.Name).Info("creating cache cluster")

	_, err := p.cache.CreateCacheCluster(ctx, &elasticache.CreateCacheClusterInput{
		CacheClusterId: aws.String(svc.Name),
		Engine:         aws.String("redis"),
		CacheNodeType:  aws.String(cacheNodeType(svc.Plan)),
		NumCacheNodes:  aws.Int32(1),
	})
	if err != nil {
		return manifest.Endpoint{}, fmt.Errorf("failed to create cache cluster %s: %w", svc.Name, err)
	}

	describe := &elasticache.DescribeCacheClustersInput{
		CacheClusterId:    aws.String(svc.Name),
		ShowCacheNodeInfo: aws.Bool(true),
	}

	waiter := elasticache.NewCacheClusterAvailableWaiter(p.cache)
	if err := waiter.Wait(ctx, describe, cacheAvailableTimeout); err != nil {
		return manifest.Endpoint{}, fmt.Errorf("cache cluster %s did not become available: %w", svc.Name, err)
	}

	out, err := p.cache.DescribeCacheClusters(ctx, describe)
	if err != nil {
		return manifest.Endpoint{}, fmt.Errorf("failed to describe cache cluster %s: %w", svc.Name, err)
	}
	if len(out.CacheClusters) == 0 || len(out.CacheClusters[0].CacheNodes) == 0 {
		return manifest.Endpoint{}, fmt.Errorf("cache cluster %s has no nodes", svc.Name)
	}

	ep := out.CacheClusters[0].CacheNodes[0].Endpoint
	if ep == nil {
		return manifest.Endpoint{}, fmt.Errorf("cache cluster %s has no endpoint", svc.Name)
	}

	return manifest.Endpoint{
		Host: aws.ToString(ep.Address),
		Port: int(aws.ToInt32(ep.Port)),
	}, nil
}

// DeleteRedis tears down an ElastiCache cluster.
func (p *Provisioner) DeleteRedis(ctx context.Context, name string) error {
	p.log.WithField("service", name).Info("deleting cache cluster")

	_, err := p.cache.DeleteCacheCluster(ctx, &elasticache.DeleteCacheClusterInput{
		CacheClusterId: aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("failed to delete cache cluster %s: %w", name, err)
	}
	return nil
}

// UploadArtifact stores a build artifact in S3 under the given key.
func (p *Provisioner) UploadArtifact(ctx context.Context, bucket, key string, body io.Reader) error {
	p.log.WithFields(logrus.Fields{"bucket": bucket, "key": key}).Info("uploading artifact")

	_, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("failed to upload artifact %s: %w", key, err)
	}
	return nil
}
