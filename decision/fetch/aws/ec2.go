package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"inventory-verify/pkg/document"
)

func machineImages() []types.Filter {
	return []types.Filter{{Name: awssdk.String("image-type"), Values: []string{"machine"}}}
}

func (f *Fetcher) instances(ctx context.Context) ([]document.Value, error) {
	var docs []document.Value
	paginator := ec2.NewDescribeInstancesPaginator(f.ec2, &ec2.DescribeInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe instances: %w", err)
		}
		for _, reservation := range page.Reservations {
			for _, inst := range reservation.Instances {
				docs = append(docs, instanceDocument(inst))
			}
		}
	}
	return docs, nil
}

func (f *Fetcher) images(ctx context.Context, input *ec2.DescribeImagesInput) ([]document.Value, error) {
	var docs []document.Value
	paginator := ec2.NewDescribeImagesPaginator(f.ec2, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe images: %w", err)
		}
		for _, img := range page.Images {
			docs = append(docs, document.Map(map[string]document.Value{
				"image_id": document.String(img.ImageId),
				"name":     document.String(img.Name),
				"tags":     tagsValue(img.Tags),
			}))
		}
	}
	return docs, nil
}

func (f *Fetcher) securityGroups(ctx context.Context) ([]document.Value, error) {
	var docs []document.Value
	paginator := ec2.NewDescribeSecurityGroupsPaginator(f.ec2, &ec2.DescribeSecurityGroupsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe security groups: %w", err)
		}
		for _, sg := range page.SecurityGroups {
			docs = append(docs, document.Map(map[string]document.Value{
				"group_id":              document.String(sg.GroupId),
				"group_name":            document.String(sg.GroupName),
				"vpc_id":                document.String(sg.VpcId),
				"ip_permissions":        permissionsValue(sg.IpPermissions),
				"ip_permissions_egress": permissionsValue(sg.IpPermissionsEgress),
			}))
		}
	}
	return docs, nil
}

func (f *Fetcher) networkInterfaces(ctx context.Context) ([]document.Value, error) {
	var docs []document.Value
	paginator := ec2.NewDescribeNetworkInterfacesPaginator(f.ec2, &ec2.DescribeNetworkInterfacesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe network interfaces: %w", err)
		}
		for _, ni := range page.NetworkInterfaces {
			privates := make([]document.Value, 0, len(ni.PrivateIpAddresses))
			for _, p := range ni.PrivateIpAddresses {
				assoc := document.Null
				if p.Association != nil {
					assoc = document.Map(map[string]document.Value{
						"allocation_id": document.String(p.Association.AllocationId),
						"public_ip":     document.String(p.Association.PublicIp),
					})
				}
				privates = append(privates, document.Map(map[string]document.Value{
					"private_ip_address": document.String(p.PrivateIpAddress),
					"association":        assoc,
				}))
			}
			docs = append(docs, document.Map(map[string]document.Value{
				"network_interface_id": document.String(ni.NetworkInterfaceId),
				"private_ip_addresses": document.List(privates...),
			}))
		}
	}
	return docs, nil
}

// DescribeAddresses, DescribeAvailabilityZones and DescribeKeyPairs are not
// paginated; each returns the full set in one response.
func (f *Fetcher) addresses(ctx context.Context) ([]document.Value, error) {
	out, err := f.ec2.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{})
	if err != nil {
		return nil, fmt.Errorf("describe addresses: %w", err)
	}
	docs := make([]document.Value, 0, len(out.Addresses))
	for _, a := range out.Addresses {
		docs = append(docs, document.Map(map[string]document.Value{
			"allocation_id":        document.String(a.AllocationId),
			"public_ip":            document.String(a.PublicIp),
			"instance_id":          document.String(a.InstanceId),
			"network_interface_id": document.String(a.NetworkInterfaceId),
		}))
	}
	return docs, nil
}

func (f *Fetcher) volumes(ctx context.Context) ([]document.Value, error) {
	var docs []document.Value
	paginator := ec2.NewDescribeVolumesPaginator(f.ec2, &ec2.DescribeVolumesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe volumes: %w", err)
		}
		for _, v := range page.Volumes {
			docs = append(docs, document.Map(map[string]document.Value{
				"volume_id": document.String(v.VolumeId),
				"size":      int32Value(v.Size),
				"state":     document.Scalar(string(v.State)),
			}))
		}
	}
	return docs, nil
}

func (f *Fetcher) snapshots(ctx context.Context) ([]document.Value, error) {
	var docs []document.Value
	paginator := ec2.NewDescribeSnapshotsPaginator(f.ec2, &ec2.DescribeSnapshotsInput{OwnerIds: []string{"self"}})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe snapshots: %w", err)
		}
		for _, s := range page.Snapshots {
			docs = append(docs, document.Map(map[string]document.Value{
				"snapshot_id": document.String(s.SnapshotId),
				"volume_id":   document.String(s.VolumeId),
			}))
		}
	}
	return docs, nil
}

func (f *Fetcher) availabilityZones(ctx context.Context) ([]document.Value, error) {
	out, err := f.ec2.DescribeAvailabilityZones(ctx, &ec2.DescribeAvailabilityZonesInput{})
	if err != nil {
		return nil, fmt.Errorf("describe availability zones: %w", err)
	}
	docs := make([]document.Value, 0, len(out.AvailabilityZones))
	for _, az := range out.AvailabilityZones {
		docs = append(docs, document.Map(map[string]document.Value{
			"zone_name": document.String(az.ZoneName),
			"state":     document.Scalar(string(az.State)),
		}))
	}
	return docs, nil
}

func (f *Fetcher) keyPairs(ctx context.Context) ([]document.Value, error) {
	out, err := f.ec2.DescribeKeyPairs(ctx, &ec2.DescribeKeyPairsInput{})
	if err != nil {
		return nil, fmt.Errorf("describe key pairs: %w", err)
	}
	docs := make([]document.Value, 0, len(out.KeyPairs))
	for _, kp := range out.KeyPairs {
		docs = append(docs, document.Map(map[string]document.Value{
			"key_name":        document.String(kp.KeyName),
			"key_fingerprint": document.String(kp.KeyFingerprint),
		}))
	}
	return docs, nil
}

func (f *Fetcher) vpcs(ctx context.Context) ([]document.Value, error) {
	var docs []document.Value
	paginator := ec2.NewDescribeVpcsPaginator(f.ec2, &ec2.DescribeVpcsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe vpcs: %w", err)
		}
		for _, v := range page.Vpcs {
			docs = append(docs, document.Map(map[string]document.Value{
				"vpc_id":     document.String(v.VpcId),
				"cidr_block": document.String(v.CidrBlock),
			}))
		}
	}
	return docs, nil
}

func (f *Fetcher) subnets(ctx context.Context) ([]document.Value, error) {
	var docs []document.Value
	paginator := ec2.NewDescribeSubnetsPaginator(f.ec2, &ec2.DescribeSubnetsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe subnets: %w", err)
		}
		for _, s := range page.Subnets {
			docs = append(docs, document.Map(map[string]document.Value{
				"subnet_id":  document.String(s.SubnetId),
				"vpc_id":     document.String(s.VpcId),
				"cidr_block": document.String(s.CidrBlock),
			}))
		}
	}
	return docs, nil
}

// =============================================================================
// CONVERTERS
// =============================================================================

func instanceDocument(inst types.Instance) document.Value {
	state := document.Null
	if inst.State != nil {
		state = document.Map(map[string]document.Value{"name": document.Scalar(string(inst.State.Name))})
	}

	mappings := make([]document.Value, 0, len(inst.BlockDeviceMappings))
	for _, bdm := range inst.BlockDeviceMappings {
		ebs := document.Null
		if bdm.Ebs != nil {
			ebs = document.Map(map[string]document.Value{"volume_id": document.String(bdm.Ebs.VolumeId)})
		}
		mappings = append(mappings, document.Map(map[string]document.Value{
			"device_name": document.String(bdm.DeviceName),
			"ebs":         ebs,
		}))
	}

	interfaces := make([]document.Value, 0, len(inst.NetworkInterfaces))
	for _, ni := range inst.NetworkInterfaces {
		interfaces = append(interfaces, document.Map(map[string]document.Value{
			"network_interface_id": document.String(ni.NetworkInterfaceId),
		}))
	}

	return document.Map(map[string]document.Value{
		"instance_id":           document.String(inst.InstanceId),
		"instance_type":         document.Scalar(string(inst.InstanceType)),
		"image_id":              document.String(inst.ImageId),
		"state":                 state,
		"public_ip_address":     document.String(inst.PublicIpAddress),
		"private_ip_address":    document.String(inst.PrivateIpAddress),
		"tags":                  tagsValue(inst.Tags),
		"block_device_mappings": document.List(mappings...),
		"network_interfaces":    document.List(interfaces...),
	})
}

func permissionsValue(perms []types.IpPermission) document.Value {
	items := make([]document.Value, 0, len(perms))
	for _, p := range perms {
		pairs := make([]document.Value, 0, len(p.UserIdGroupPairs))
		for _, pair := range p.UserIdGroupPairs {
			pairs = append(pairs, document.Map(map[string]document.Value{
				"group_id": document.String(pair.GroupId),
				"user_id":  document.String(pair.UserId),
			}))
		}
		ranges := make([]document.Value, 0, len(p.IpRanges))
		for _, r := range p.IpRanges {
			ranges = append(ranges, document.Map(map[string]document.Value{
				"cidr_ip": document.String(r.CidrIp),
			}))
		}
		items = append(items, document.Map(map[string]document.Value{
			"ip_protocol":         document.String(p.IpProtocol),
			"from_port":           int32Value(p.FromPort),
			"to_port":             int32Value(p.ToPort),
			"user_id_group_pairs": document.List(pairs...),
			"ip_ranges":           document.List(ranges...),
		}))
	}
	return document.List(items...)
}

func tagsValue(tags []types.Tag) document.Value {
	items := make([]document.Value, 0, len(tags))
	for _, t := range tags {
		items = append(items, document.Map(map[string]document.Value{
			"key":   document.String(t.Key),
			"value": document.String(t.Value),
		}))
	}
	return document.List(items...)
}

func int32Value(p *int32) document.Value {
	if p == nil {
		return document.Null
	}
	return document.Scalar(int(*p))
}
