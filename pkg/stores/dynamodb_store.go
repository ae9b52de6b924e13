package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/openfroyo/opsplan/pkg/engine"
)

// DynamoDBAPI is the subset of the DynamoDB client used by DynamoDBStore.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoDBConfig holds DynamoDB store configuration.
type DynamoDBConfig struct {
	// PlansTable is keyed by the string attribute PlanID.
	PlansTable string
	// AuditTable is keyed by PlanID (partition) and EventKey (sort).
	// Audit operations fail when it is empty.
	AuditTable string
	Region     string
	Profile    string
	// Endpoint overrides the service endpoint, e.g. for DynamoDB Local.
	Endpoint string
}

// Item attribute names.
const (
	attrPlanID    = "PlanID"
	attrStatus    = "Status"
	attrAction    = "Action"
	attrNamespace = "Namespace"
	attrBody      = "Body"
	attrCreatedAt = "CreatedAt"
	attrUpdatedAt = "UpdatedAt"
	attrEventKey  = "EventKey"
	attrEventType = "Type"
)

// DynamoDBStore implements Store on DynamoDB. The status compare-and-swap
// is a conditional PutItem.
type DynamoDBStore struct {
	client DynamoDBAPI
	cfg    DynamoDBConfig
	seq    atomic.Uint64
}

// NewDynamoDBStore creates a store using the default AWS credential chain.
func NewDynamoDBStore(ctx context.Context, cfg DynamoDBConfig) (*DynamoDBStore, error) {
	if cfg.PlansTable == "" {
		return nil, fmt.Errorf("dynamodb plans table is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return NewDynamoDBStoreWithClient(client, cfg), nil
}

// NewDynamoDBStoreWithClient creates a store on an existing client.
func NewDynamoDBStoreWithClient(client DynamoDBAPI, cfg DynamoDBConfig) *DynamoDBStore {
	return &DynamoDBStore{client: client, cfg: cfg}
}

// Init implements Store. Tables are provisioned outside the application.
func (s *DynamoDBStore) Init(context.Context) error { return nil }

// Migrate implements Store.
func (s *DynamoDBStore) Migrate(context.Context) error { return nil }

// Close implements Store.
func (s *DynamoDBStore) Close() error { return nil }

// HealthCheck verifies the plans table is reachable.
func (s *DynamoDBStore) HealthCheck(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.cfg.PlansTable),
	})
	if err != nil {
		return fmt.Errorf("failed to describe table %s: %w", s.cfg.PlansTable, err)
	}
	return nil
}

// Get retrieves a plan by ID using a strongly consistent read.
func (s *DynamoDBStore) Get(ctx context.Context, id string) (*engine.OperationPlan, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.cfg.PlansTable),
		Key: map[string]dbtypes.AttributeValue{
			attrPlanID: &dbtypes.AttributeValueMemberS{Value: id},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, unavailable("get plan", err).WithPlan(id)
	}
	if len(out.Item) == 0 {
		return nil, engine.NewNotFoundError(id)
	}

	return planFromItem(out.Item)
}

// Create inserts a plan unless the id is taken.
func (s *DynamoDBStore) Create(ctx context.Context, plan *engine.OperationPlan) error {
	if err := validatePlan(plan); err != nil {
		return err
	}

	item, err := planItem(plan)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.cfg.PlansTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PlanID)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return duplicateError(plan.ID)
		}
		return unavailable("create plan", err).WithPlan(plan.ID)
	}

	return nil
}

// Replace overwrites a plan if its stored status still equals expected.
func (s *DynamoDBStore) Replace(ctx context.Context, plan *engine.OperationPlan, expected engine.Status) error {
	if err := validatePlan(plan); err != nil {
		return err
	}

	item, err := planItem(plan)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.cfg.PlansTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(PlanID) AND #s = :expected"),
		ExpressionAttributeNames: map[string]string{
			"#s": attrStatus,
		},
		ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
			":expected": &dbtypes.AttributeValueMemberS{Value: string(expected)},
		},
		ReturnValuesOnConditionCheckFailure: dbtypes.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err == nil {
		return nil
	}

	var ccf *dbtypes.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		return unavailable("replace plan", err).WithPlan(plan.ID)
	}
	if len(ccf.Item) == 0 {
		return engine.NewNotFoundError(plan.ID)
	}

	actual := engine.Status("")
	if v, ok := ccf.Item[attrStatus].(*dbtypes.AttributeValueMemberS); ok {
		actual = engine.Status(v.Value)
	}
	return conflictError(plan.ID, expected, actual)
}

// List scans the plans table and returns matches newest first.
func (s *DynamoDBStore) List(ctx context.Context, filter ListFilter) ([]*engine.OperationPlan, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(s.cfg.PlansTable),
	}
	applyPlanFilter(input, filter)

	var plans []*engine.OperationPlan
	for {
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, unavailable("scan plans", err)
		}
		for _, item := range out.Items {
			plan, err := planFromItem(item)
			if err != nil {
				return nil, err
			}
			plans = append(plans, plan)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	sort.Slice(plans, func(i, j int) bool {
		ti, tj := plans[i].Audit.Timestamps.CreatedAt, plans[j].Audit.Timestamps.CreatedAt
		if ti.Equal(tj) {
			return plans[i].ID < plans[j].ID
		}
		return ti.After(tj)
	})

	start, end := page(len(plans), filter.Offset, filter.Limit)
	return plans[start:end], nil
}

// AppendAuditEvent writes an event to the audit table.
func (s *DynamoDBStore) AppendAuditEvent(ctx context.Context, event engine.AuditEvent) error {
	if s.cfg.AuditTable == "" {
		return fmt.Errorf("dynamodb audit table is not configured")
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.cfg.AuditTable),
		Item: map[string]dbtypes.AttributeValue{
			attrPlanID:    &dbtypes.AttributeValueMemberS{Value: event.PlanID},
			attrEventKey:  &dbtypes.AttributeValueMemberS{Value: eventKey(event, s.seq.Add(1))},
			attrEventType: &dbtypes.AttributeValueMemberS{Value: string(event.Type)},
			attrBody:      &dbtypes.AttributeValueMemberS{Value: string(body)},
		},
	})
	if err != nil {
		return unavailable("append audit event", err).WithPlan(event.PlanID)
	}

	return nil
}

// ListAuditEvents queries one plan's events, or scans all events when no
// plan id is given. Results are in timestamp order.
func (s *DynamoDBStore) ListAuditEvents(ctx context.Context, filter AuditFilter) ([]engine.AuditEvent, error) {
	if s.cfg.AuditTable == "" {
		return nil, fmt.Errorf("dynamodb audit table is not configured")
	}

	var items []map[string]dbtypes.AttributeValue
	if filter.PlanID != "" {
		input := &dynamodb.QueryInput{
			TableName:              aws.String(s.cfg.AuditTable),
			KeyConditionExpression: aws.String("PlanID = :plan"),
			ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
				":plan": &dbtypes.AttributeValueMemberS{Value: filter.PlanID},
			},
			ScanIndexForward: aws.Bool(true),
		}
		for {
			out, err := s.client.Query(ctx, input)
			if err != nil {
				return nil, unavailable("query audit events", err)
			}
			items = append(items, out.Items...)
			if len(out.LastEvaluatedKey) == 0 {
				break
			}
			input.ExclusiveStartKey = out.LastEvaluatedKey
		}
	} else {
		input := &dynamodb.ScanInput{TableName: aws.String(s.cfg.AuditTable)}
		for {
			out, err := s.client.Scan(ctx, input)
			if err != nil {
				return nil, unavailable("scan audit events", err)
			}
			items = append(items, out.Items...)
			if len(out.LastEvaluatedKey) == 0 {
				break
			}
			input.ExclusiveStartKey = out.LastEvaluatedKey
		}
	}

	keys := make(map[string]string, len(items))
	events := make([]engine.AuditEvent, 0, len(items))
	for _, item := range items {
		body, ok := item[attrBody].(*dbtypes.AttributeValueMemberS)
		if !ok {
			return nil, fmt.Errorf("audit item missing %s attribute", attrBody)
		}
		var event engine.AuditEvent
		if err := json.Unmarshal([]byte(body.Value), &event); err != nil {
			return nil, fmt.Errorf("failed to decode audit event: %w", err)
		}
		if !filter.Matches(event) {
			continue
		}
		if k, ok := item[attrEventKey].(*dbtypes.AttributeValueMemberS); ok {
			keys[event.ID] = k.Value
		}
		events = append(events, event)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return keys[events[i].ID] < keys[events[j].ID]
	})

	start, end := page(len(events), filter.Offset, filter.Limit)
	return events[start:end], nil
}

func applyPlanFilter(input *dynamodb.ScanInput, filter ListFilter) {
	names := map[string]string{}
	values := map[string]dbtypes.AttributeValue{}
	var expr string

	add := func(attr, placeholder, value string) {
		if value == "" {
			return
		}
		names["#"+placeholder] = attr
		values[":"+placeholder] = &dbtypes.AttributeValueMemberS{Value: value}
		clause := fmt.Sprintf("#%s = :%s", placeholder, placeholder)
		if expr == "" {
			expr = clause
		} else {
			expr += " AND " + clause
		}
	}

	add(attrStatus, "status", string(filter.Status))
	add(attrAction, "action", string(filter.Action))
	add(attrNamespace, "ns", filter.Namespace)

	if expr != "" {
		input.FilterExpression = aws.String(expr)
		input.ExpressionAttributeNames = names
		input.ExpressionAttributeValues = values
	}
}

func planItem(plan *engine.OperationPlan) (map[string]dbtypes.AttributeValue, error) {
	body, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("failed to encode plan: %w", err)
	}

	return map[string]dbtypes.AttributeValue{
		attrPlanID:    &dbtypes.AttributeValueMemberS{Value: plan.ID},
		attrStatus:    &dbtypes.AttributeValueMemberS{Value: string(plan.Status)},
		attrAction:    &dbtypes.AttributeValueMemberS{Value: string(plan.Action)},
		attrNamespace: &dbtypes.AttributeValueMemberS{Value: plan.Resource.Namespace},
		attrBody:      &dbtypes.AttributeValueMemberS{Value: string(body)},
		attrCreatedAt: &dbtypes.AttributeValueMemberS{Value: formatTime(plan.Audit.Timestamps.CreatedAt)},
		attrUpdatedAt: &dbtypes.AttributeValueMemberS{Value: formatTime(time.Now())},
	}, nil
}

func planFromItem(item map[string]dbtypes.AttributeValue) (*engine.OperationPlan, error) {
	body, ok := item[attrBody].(*dbtypes.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("plan item missing %s attribute", attrBody)
	}
	return decodePlan(body.Value)
}

// eventKey orders events within a plan partition. The sequence breaks ties
// between events written in the same instant by one process.
func eventKey(event engine.AuditEvent, seq uint64) string {
	return fmt.Sprintf("%s#%012d#%s", formatTime(event.Timestamp), seq, event.ID)
}

func isConditionFailed(err error) bool {
	var ccf *dbtypes.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
