package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"

	"inventory-verify/pkg/document"
)

func (f *Fetcher) stacks(ctx context.Context) ([]document.Value, error) {
	var docs []document.Value
	paginator := cloudformation.NewDescribeStacksPaginator(f.cfn, &cloudformation.DescribeStacksInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe stacks: %w", err)
		}
		for _, s := range page.Stacks {
			params := make([]document.Value, 0, len(s.Parameters))
			for _, p := range s.Parameters {
				params = append(params, document.Map(map[string]document.Value{
					"parameter_key":   document.String(p.ParameterKey),
					"parameter_value": document.String(p.ParameterValue),
				}))
			}
			outputs := make([]document.Value, 0, len(s.Outputs))
			for _, o := range s.Outputs {
				outputs = append(outputs, document.Map(map[string]document.Value{
					"output_key":   document.String(o.OutputKey),
					"output_value": document.String(o.OutputValue),
				}))
			}
			docs = append(docs, document.Map(map[string]document.Value{
				"stack_name":   document.String(s.StackName),
				"stack_id":     document.String(s.StackId),
				"stack_status": document.Scalar(string(s.StackStatus)),
				"parameters":   document.List(params...),
				"outputs":      document.List(outputs...),
			}))
		}
	}
	return docs, nil
}

func (f *Fetcher) stackResources(ctx context.Context, stackName string) ([]document.Value, error) {
	var docs []document.Value
	paginator := cloudformation.NewListStackResourcesPaginator(f.cfn, &cloudformation.ListStackResourcesInput{
		StackName: awssdk.String(stackName),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list stack resources of %s: %w", stackName, err)
		}
		for _, r := range page.StackResourceSummaries {
			docs = append(docs, document.Map(map[string]document.Value{
				"logical_resource_id":  document.String(r.LogicalResourceId),
				"physical_resource_id": document.String(r.PhysicalResourceId),
				"resource_type":        document.String(r.ResourceType),
				"resource_status":      document.Scalar(string(r.ResourceStatus)),
			}))
		}
	}
	return docs, nil
}

// stackTemplate returns the stack's template body as a single document.
func (f *Fetcher) stackTemplate(ctx context.Context, stackName string) ([]document.Value, error) {
	out, err := f.cfn.GetTemplate(ctx, &cloudformation.GetTemplateInput{StackName: awssdk.String(stackName)})
	if err != nil {
		return nil, fmt.Errorf("get template of %s: %w", stackName, err)
	}
	return []document.Value{document.Map(map[string]document.Value{
		"stack_name":    document.Scalar(stackName),
		"template_body": document.String(out.TemplateBody),
	})}, nil
}

// loadBalancers lists classic load balancers. They are fetched for
// inspection only; no entity type counts them yet.
func (f *Fetcher) loadBalancers(ctx context.Context) ([]document.Value, error) {
	if f.elb == nil {
		return nil, nil
	}
	var docs []document.Value
	paginator := elasticloadbalancing.NewDescribeLoadBalancersPaginator(f.elb, &elasticloadbalancing.DescribeLoadBalancersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe load balancers: %w", err)
		}
		for _, lb := range page.LoadBalancerDescriptions {
			members := make([]document.Value, 0, len(lb.Instances))
			for _, inst := range lb.Instances {
				members = append(members, document.Map(map[string]document.Value{
					"instance_id": document.String(inst.InstanceId),
				}))
			}
			docs = append(docs, document.Map(map[string]document.Value{
				"load_balancer_name": document.String(lb.LoadBalancerName),
				"dns_name":           document.String(lb.DNSName),
				"instances":          document.List(members...),
			}))
		}
	}
	return docs, nil
}

// loadBalancerHealth lists the health of each instance registered with a
// classic load balancer.
func (f *Fetcher) loadBalancerHealth(ctx context.Context, name string) ([]document.Value, error) {
	if f.elb == nil {
		return nil, nil
	}
	out, err := f.elb.DescribeInstanceHealth(ctx, &elasticloadbalancing.DescribeInstanceHealthInput{
		LoadBalancerName: awssdk.String(name),
	})
	if err != nil {
		return nil, fmt.Errorf("describe instance health of %s: %w", name, err)
	}
	docs := make([]document.Value, 0, len(out.InstanceStates))
	for _, st := range out.InstanceStates {
		docs = append(docs, document.Map(map[string]document.Value{
			"instance_id": document.String(st.InstanceId),
			"state":       document.String(st.State),
			"reason_code": document.String(st.ReasonCode),
			"description": document.String(st.Description),
		}))
	}
	return docs, nil
}
