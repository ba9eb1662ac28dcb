// Package aws fetches raw inventory documents from the AWS APIs and
// converts them into the snake_case documents the derivation rules read.
package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"
	"github.com/rs/zerolog"

	"inventory-verify/decision/fetch"
	"inventory-verify/pkg/document"
)

// EC2API is the subset of the EC2 client used by the fetcher.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeImages(ctx context.Context, params *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error)
	DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
	DescribeNetworkInterfaces(ctx context.Context, params *ec2.DescribeNetworkInterfacesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeNetworkInterfacesOutput, error)
	DescribeAddresses(ctx context.Context, params *ec2.DescribeAddressesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeAddressesOutput, error)
	DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
	DescribeSnapshots(ctx context.Context, params *ec2.DescribeSnapshotsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error)
	DescribeAvailabilityZones(ctx context.Context, params *ec2.DescribeAvailabilityZonesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeAvailabilityZonesOutput, error)
	DescribeKeyPairs(ctx context.Context, params *ec2.DescribeKeyPairsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeKeyPairsOutput, error)
	DescribeVpcs(ctx context.Context, params *ec2.DescribeVpcsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error)
	DescribeSubnets(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
}

// CloudFormationAPI is the subset of the CloudFormation client used by the fetcher.
type CloudFormationAPI interface {
	DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
	ListStackResources(ctx context.Context, params *cloudformation.ListStackResourcesInput, optFns ...func(*cloudformation.Options)) (*cloudformation.ListStackResourcesOutput, error)
	GetTemplate(ctx context.Context, params *cloudformation.GetTemplateInput, optFns ...func(*cloudformation.Options)) (*cloudformation.GetTemplateOutput, error)
}

// ELBAPI is the subset of the classic load balancing client used by the fetcher.
type ELBAPI interface {
	DescribeLoadBalancers(ctx context.Context, params *elasticloadbalancing.DescribeLoadBalancersInput, optFns ...func(*elasticloadbalancing.Options)) (*elasticloadbalancing.DescribeLoadBalancersOutput, error)
	DescribeInstanceHealth(ctx context.Context, params *elasticloadbalancing.DescribeInstanceHealthInput, optFns ...func(*elasticloadbalancing.Options)) (*elasticloadbalancing.DescribeInstanceHealthOutput, error)
}

// Fetcher implements fetch.Fetcher against live AWS APIs.
type Fetcher struct {
	ec2    EC2API
	cfn    CloudFormationAPI
	elb    ELBAPI
	logger zerolog.Logger
}

// New creates a fetcher over explicit clients.
func New(ec2Client EC2API, cfnClient CloudFormationAPI, elbClient ELBAPI, logger zerolog.Logger) *Fetcher {
	return &Fetcher{ec2: ec2Client, cfn: cfnClient, elb: elbClient, logger: logger}
}

// NewFromConfig creates a fetcher with SDK clients built from cfg.
func NewFromConfig(cfg awssdk.Config, logger zerolog.Logger) *Fetcher {
	return New(
		ec2.NewFromConfig(cfg),
		cloudformation.NewFromConfig(cfg),
		elasticloadbalancing.NewFromConfig(cfg),
		logger,
	)
}

// LoadConfig resolves credentials and region from the default chain.
// Empty region or profile leave the SDK defaults in place.
func LoadConfig(ctx context.Context, region, profile string, maxAttempts int) (awssdk.Config, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	if maxAttempts > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(maxAttempts))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return awssdk.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// Fetch retrieves one collection.
func (f *Fetcher) Fetch(ctx context.Context, kind fetch.Kind, params fetch.Params) ([]document.Value, error) {
	f.logger.Debug().Str("kind", string(kind)).Msg("calling AWS")

	switch kind {
	case fetch.Instances:
		docs, err := f.instances(ctx)
		if err != nil {
			return nil, err
		}
		return fetch.DropTerminated(docs), nil
	case fetch.PrivateImages:
		return f.images(ctx, &ec2.DescribeImagesInput{Owners: []string{"self"}, Filters: machineImages()})
	case fetch.SharedImages:
		return f.images(ctx, &ec2.DescribeImagesInput{ExecutableUsers: []string{"self"}, Filters: machineImages()})
	case fetch.SecurityGroups:
		return f.securityGroups(ctx)
	case fetch.NetworkInterfaces:
		return f.networkInterfaces(ctx)
	case fetch.Addresses:
		return f.addresses(ctx)
	case fetch.Volumes:
		return f.volumes(ctx)
	case fetch.VolumeSnapshots:
		return f.snapshots(ctx)
	case fetch.AvailabilityZones:
		return f.availabilityZones(ctx)
	case fetch.KeyPairs:
		return f.keyPairs(ctx)
	case fetch.Networks:
		return f.vpcs(ctx)
	case fetch.Subnets:
		return f.subnets(ctx)
	case fetch.Stacks:
		return f.stacks(ctx)
	case fetch.StackResources, fetch.StackTemplate:
		name, err := fetch.RequireKey(kind, params)
		if err != nil {
			return nil, err
		}
		if kind == fetch.StackTemplate {
			return f.stackTemplate(ctx, name)
		}
		return f.stackResources(ctx, name)
	case fetch.LoadBalancers:
		return f.loadBalancers(ctx)
	case fetch.LoadBalancerHealth:
		name, err := fetch.RequireKey(kind, params)
		if err != nil {
			return nil, err
		}
		return f.loadBalancerHealth(ctx, name)
	default:
		return nil, fmt.Errorf("unknown document kind %q", kind)
	}
}
