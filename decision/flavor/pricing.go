package flavor

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/aws/aws-sdk-go-v2/service/pricing/types"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// PricingRegion hosts the Price List query API.
const PricingRegion = "us-east-1"

// PricingAPI is the subset of the Price List client used here.
type PricingAPI interface {
	GetProducts(ctx context.Context, params *pricing.GetProductsInput, optFns ...func(*pricing.Options)) (*pricing.GetProductsOutput, error)
}

// PricingSource builds a flavor table from the AWS Price List API.
type PricingSource struct {
	client   PricingAPI
	location string
	logger   zerolog.Logger
}

// NewPricingSource creates a source. location is the price list location
// name (e.g. "US East (N. Virginia)"); empty means any location.
func NewPricingSource(client PricingAPI, location string, logger zerolog.Logger) *PricingSource {
	return &PricingSource{client: client, location: location, logger: logger}
}

// Table pages through EC2 compute instance products and collects the
// ephemeral disk count of every instance type.
func (s *PricingSource) Table(ctx context.Context) (Table, error) {
	filters := []types.Filter{
		termMatch("productFamily", "Compute Instance"),
		termMatch("operatingSystem", "Linux"),
		termMatch("tenancy", "Shared"),
		termMatch("preInstalledSw", "NA"),
		termMatch("capacitystatus", "Used"),
	}
	if s.location != "" {
		filters = append(filters, termMatch("location", s.location))
	}

	table := make(Table)
	paginator := pricing.NewGetProductsPaginator(s.client, &pricing.GetProductsInput{
		ServiceCode:   aws.String("AmazonEC2"),
		FormatVersion: aws.String("aws_v1"),
		Filters:       filters,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get products: %w", err)
		}
		for _, item := range page.PriceList {
			name, disks, ok := parseProduct(item)
			if !ok {
				continue
			}
			table[name] = disks
		}
	}
	s.logger.Info().Int("flavors", len(table)).Msg("loaded flavor table from price list")
	return table, nil
}

func termMatch(field, value string) types.Filter {
	return types.Filter{
		Field: aws.String(field),
		Type:  types.FilterTypeTermMatch,
		Value: aws.String(value),
	}
}

// parseProduct extracts the instance type and ephemeral disk count from
// one price list JSON document.
func parseProduct(item string) (string, int, bool) {
	attrs := gjson.Get(item, "product.attributes")
	name := attrs.Get("instanceType").String()
	if name == "" {
		return "", 0, false
	}
	return name, ParseStorage(attrs.Get("storage").String()), true
}

var storagePattern = regexp.MustCompile(`^\s*(\d+)\s*x\s*`)

// ParseStorage reads the disk count of a price list storage attribute:
// "2 x 840 SSD" is 2, "EBS only" is 0.
func ParseStorage(storage string) int {
	s := strings.TrimSpace(storage)
	if s == "" || strings.EqualFold(s, "EBS only") {
		return 0
	}
	if m := storagePattern.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return n
		}
	}
	// "900 GB NVMe SSD" style attributes describe a single device
	return 1
}
