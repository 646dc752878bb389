// Package tools exposes the activity feed to MCP (Model Context Protocol)
// clients. The tools can be served standalone or registered on an existing
// MCP server.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"go.miloapis.com/activityfeed/internal/cel"
	"go.miloapis.com/activityfeed/pkg/apis/activity/v1alpha1"
	"go.miloapis.com/activityfeed/pkg/client"
	"go.miloapis.com/activityfeed/pkg/facets"
	"go.miloapis.com/activityfeed/pkg/filter"
	"go.miloapis.com/activityfeed/pkg/timerange"
)

const (
	defaultStartTime  = timerange.Last7Days
	defaultQueryLimit = 100
	defaultFacetLimit = 20
	maxFacetLimit     = 100
)

// ToolProvider serves the Activity API as MCP tools.
type ToolProvider struct {
	client client.Interface
	clock  clock.PassiveClock
}

// NewToolProvider creates a ToolProvider backed by c.
func NewToolProvider(c client.Interface) *ToolProvider {
	return &ToolProvider{client: c, clock: clock.RealClock{}}
}

// RegisterTools registers all activity tools with an MCP server.
func (p *ToolProvider) RegisterTools(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "query_activities",
		Description: "Search the activity feed: human-readable records of who changed which resource and how. Results are returned newest-first. Pass the returned cursor to fetch the next page.",
	}, p.handleQueryActivities)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_activity_facets",
		Description: "Get distinct values and counts for activity fields (resource kind, actor, namespace, API group). Each field is counted under the other filters but not its own. Use this to discover valid filter values.",
	}, p.handleGetActivityFacets)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_activity_policies",
		Description: "List the ActivityPolicies that turn audit logs and events into activities, with the resource each one targets and whether its rules compiled.",
	}, p.handleListActivityPolicies)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "query_audit_logs",
		Description: "Search audit logs from the control plane. Use this to investigate incidents, track resource changes, or analyze user activity. Results are returned newest-first.",
	}, p.handleQueryAuditLogs)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_audit_log_facets",
		Description: "Get distinct values and counts for audit log fields. Use this to discover what verbs, users, resources, and namespaces appear in the audit logs.",
	}, p.handleGetAuditLogFacets)
}

// TimeWindow is the time range shared by the query tools.
type TimeWindow struct {
	StartTime string `json:"startTime,omitempty" jsonschema:"Start of the search window. Relative (e.g. now-7d) or RFC3339. Defaults to now-7d."`
	EndTime   string `json:"endTime,omitempty" jsonschema:"End of the search window. Relative (e.g. now) or RFC3339. Defaults to now."`
}

func (w TimeWindow) timeRange(now time.Time) (timerange.TimeRange, error) {
	start := w.StartTime
	if start == "" {
		start = defaultStartTime
	}
	return timerange.Parse(start, w.EndTime, now)
}

// ActivityFilterArgs are the activity filters shared by query_activities and
// get_activity_facets.
type ActivityFilterArgs struct {
	ChangeSource string   `json:"changeSource,omitempty" jsonschema:"Only human or system changes"`
	Kinds        []string `json:"kinds,omitempty" jsonschema:"Resource kinds, e.g. HTTPProxy. Any of them matches."`
	Actors       []string `json:"actors,omitempty" jsonschema:"Actor names. Any of them matches."`
	Namespaces   []string `json:"namespaces,omitempty" jsonschema:"Resource namespaces. Any of them matches."`
	APIGroups    []string `json:"apiGroups,omitempty" jsonschema:"Resource API groups. Use an empty string for the core group."`
	ResourceName string   `json:"resourceName,omitempty" jsonschema:"Case-insensitive substring of the resource name"`
	ResourceUID  string   `json:"resourceUID,omitempty" jsonschema:"Exact resource UID"`
	Search       string   `json:"search,omitempty" jsonschema:"Full-text search over activity summaries"`
	Filter       string   `json:"filter,omitempty" jsonschema:"Additional CEL expression, e.g. spec.actor.type == 'user'"`
}

func (a ActivityFilterArgs) filters() filter.Filters {
	return filter.Filters{
		ChangeSource:  a.ChangeSource,
		ResourceKinds: a.Kinds,
		ActorNames:    a.Actors,
		Namespaces:    a.Namespaces,
		APIGroups:     a.APIGroups,
		ResourceName:  a.ResourceName,
		ResourceUID:   a.ResourceUID,
		Search:        a.Search,
		Expression:    a.Filter,
	}
}

// QueryActivitiesArgs contains the arguments for the query_activities tool.
type QueryActivitiesArgs struct {
	TimeWindow
	ActivityFilterArgs

	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum results to return (default: 100, max: 1000)"`
	Cursor string `json:"cursor,omitempty" jsonschema:"Cursor returned by a previous call, to fetch the next page"`
}

type activityOutput struct {
	Name         string                    `json:"name"`
	Timestamp    string                    `json:"timestamp"`
	Summary      string                    `json:"summary"`
	ChangeSource string                    `json:"changeSource"`
	Actor        v1alpha1.ActivityActor    `json:"actor"`
	Resource     v1alpha1.ActivityResource `json:"resource"`
	Changes      []v1alpha1.ActivityChange `json:"changes,omitempty"`
}

func (p *ToolProvider) handleQueryActivities(ctx context.Context, req *mcp.CallToolRequest, args QueryActivitiesArgs) (*mcp.CallToolResult, any, error) {
	tr, err := args.timeRange(p.clock.Now())
	if err != nil {
		return errorResult(fmt.Sprintf("Invalid time range: %v", err)), nil, nil
	}
	filters := args.filters()
	if err := filters.Validate(); err != nil {
		return errorResult(fmt.Sprintf("Invalid filters: %v", err)), nil, nil
	}

	result, err := p.client.ListActivities(ctx, client.ListRequest{
		Filters:   filters,
		TimeRange: tr,
		PageSize:  limitOrDefault(args.Limit, defaultQueryLimit),
		Cursor:    args.Cursor,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
	}

	activities := make([]activityOutput, 0, len(result.Items))
	for i := range result.Items {
		a := &result.Items[i]
		activities = append(activities, activityOutput{
			Name:         a.Name,
			Timestamp:    a.CreationTimestamp.UTC().Format(time.RFC3339),
			Summary:      a.Spec.Summary,
			ChangeSource: a.Spec.ChangeSource,
			Actor:        a.Spec.Actor,
			Resource:     a.Spec.Resource,
			Changes:      a.Spec.Changes,
		})
	}

	return jsonResult(map[string]any{
		"count":      len(activities),
		"timeRange":  tr.String(),
		"cursor":     result.NextCursor,
		"hasMore":    result.HasMore,
		"activities": activities,
	})
}

// GetActivityFacetsArgs contains the arguments for the get_activity_facets tool.
type GetActivityFacetsArgs struct {
	TimeWindow
	ActivityFilterArgs

	Fields []string `json:"fields,omitempty" jsonschema:"Fields to count. Supported: spec.resource.kind, spec.actor.name, spec.resource.namespace, spec.resource.apiGroup, spec.changeSource, spec.actor.type. Defaults to the first four."`
	Limit  int      `json:"limit,omitempty" jsonschema:"Maximum distinct values per field (default: 20, max: 100)"`
}

func (p *ToolProvider) handleGetActivityFacets(ctx context.Context, req *mcp.CallToolRequest, args GetActivityFacetsArgs) (*mcp.CallToolResult, any, error) {
	tr, err := args.timeRange(p.clock.Now())
	if err != nil {
		return errorResult(fmt.Sprintf("Invalid time range: %v", err)), nil, nil
	}
	filters := args.filters()
	if err := filters.Validate(); err != nil {
		return errorResult(fmt.Sprintf("Invalid filters: %v", err)), nil, nil
	}

	loader := facets.NewLoader(p.client, args.Fields...)
	result := loader.Load(ctx, filters, tr)
	if len(result.Errors) == len(loader.Fields()) {
		return errorResult(fmt.Sprintf("Query failed: %v", result.Err)), nil, nil
	}

	limit := facetLimit(args.Limit)
	output := make(map[string]any, len(loader.Fields()))
	for _, field := range loader.Fields() {
		if err, failed := result.Errors[field]; failed {
			output[field] = map[string]string{"error": err.Error()}
			continue
		}
		output[field] = facetValuesOutput(result.Options(field), limit)
	}
	return jsonResult(output)
}

// ListActivityPoliciesArgs contains the arguments for the
// list_activity_policies tool.
type ListActivityPoliciesArgs struct {
	APIGroup string `json:"apiGroup,omitempty" jsonschema:"Only policies targeting this API group"`
	Kind     string `json:"kind,omitempty" jsonschema:"Only policies targeting this kind"`
}

type policyOutput struct {
	Name       string `json:"name"`
	APIGroup   string `json:"apiGroup"`
	Kind       string `json:"kind"`
	AuditRules int    `json:"auditRules"`
	EventRules int    `json:"eventRules"`
	Ready      bool   `json:"ready"`
	Message    string `json:"message,omitempty"`
}

func (p *ToolProvider) handleListActivityPolicies(ctx context.Context, req *mcp.CallToolRequest, args ListActivityPoliciesArgs) (*mcp.CallToolResult, any, error) {
	list, err := p.client.ListPolicies(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to list policies: %v", err)), nil, nil
	}

	policies := make([]policyOutput, 0, len(list.Items))
	for i := range list.Items {
		pol := &list.Items[i]
		r := pol.Spec.Resource
		if args.APIGroup != "" && r.APIGroup != args.APIGroup {
			continue
		}
		if args.Kind != "" && r.Kind != args.Kind {
			continue
		}
		out := policyOutput{
			Name:       pol.Name,
			APIGroup:   r.APIGroup,
			Kind:       r.Kind,
			AuditRules: len(pol.Spec.AuditRules),
			EventRules: len(pol.Spec.EventRules),
		}
		if cond := meta.FindStatusCondition(pol.Status.Conditions, "Ready"); cond != nil {
			out.Ready = cond.Status == metav1.ConditionTrue
			if !out.Ready {
				out.Message = cond.Message
			}
		}
		policies = append(policies, out)
	}

	return jsonResult(map[string]any{
		"count":    len(policies),
		"policies": policies,
	})
}

// QueryAuditLogsArgs contains the arguments for the query_audit_logs tool.
type QueryAuditLogsArgs struct {
	TimeWindow

	Filter string `json:"filter,omitempty" jsonschema:"CEL filter expression. Available fields: verb, user.username, user.uid, responseStatus.code, objectRef.namespace, objectRef.resource, objectRef.name, objectRef.apiGroup. Examples: verb == 'delete', objectRef.namespace == 'production'"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum results to return (default: 100, max: 1000)"`
	Cursor string `json:"cursor,omitempty" jsonschema:"Cursor returned by a previous call, to fetch the next page"`
}

func (p *ToolProvider) handleQueryAuditLogs(ctx context.Context, req *mcp.CallToolRequest, args QueryAuditLogsArgs) (*mcp.CallToolResult, any, error) {
	tr, err := args.timeRange(p.clock.Now())
	if err != nil {
		return errorResult(fmt.Sprintf("Invalid time range: %v", err)), nil, nil
	}
	if res := checkAuditFilter(ctx, args.Filter); res != nil {
		return res, nil, nil
	}

	result, err := p.client.ListAuditLogs(ctx, client.AuditLogRequest{
		Filter:    args.Filter,
		TimeRange: tr,
		PageSize:  limitOrDefault(args.Limit, defaultQueryLimit),
		Cursor:    args.Cursor,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
	}

	return jsonResult(map[string]any{
		"count":     len(result.Items),
		"timeRange": tr.String(),
		"cursor":    result.NextCursor,
		"hasMore":   result.HasMore,
		"events":    result.Items,
	})
}

// GetAuditLogFacetsArgs contains the arguments for the get_audit_log_facets tool.
type GetAuditLogFacetsArgs struct {
	TimeWindow

	Fields []string `json:"fields" jsonschema:"Fields to get facets for. Supported: verb, user.username, user.uid, responseStatus.code, objectRef.namespace, objectRef.resource, objectRef.apiGroup"`
	Filter string   `json:"filter,omitempty" jsonschema:"CEL filter to narrow down audit logs before computing facets"`
	Limit  int      `json:"limit,omitempty" jsonschema:"Maximum distinct values per field (default: 20, max: 100)"`
}

func (p *ToolProvider) handleGetAuditLogFacets(ctx context.Context, req *mcp.CallToolRequest, args GetAuditLogFacetsArgs) (*mcp.CallToolResult, any, error) {
	if len(args.Fields) == 0 {
		return errorResult("At least one field is required"), nil, nil
	}
	tr, err := args.timeRange(p.clock.Now())
	if err != nil {
		return errorResult(fmt.Sprintf("Invalid time range: %v", err)), nil, nil
	}
	if res := checkAuditFilter(ctx, args.Filter); res != nil {
		return res, nil, nil
	}

	limit := facetLimit(args.Limit)
	output := make(map[string]any, len(args.Fields))
	for _, field := range args.Fields {
		values, err := p.client.GetAuditLogFacets(ctx, field, args.Filter, tr)
		if err != nil {
			klog.V(2).InfoS("Audit log facet query failed", "field", field, "err", err)
			return errorResult(fmt.Sprintf("Query failed for %s: %v", field, err)), nil, nil
		}
		output[field] = facetValuesOutput(values, limit)
	}
	return jsonResult(output)
}

// checkAuditFilter returns an error result when expr is set but does not
// compile.
func checkAuditFilter(ctx context.Context, expr string) *mcp.CallToolResult {
	if expr == "" {
		return nil
	}
	if _, err := cel.CompileAuditFilter(ctx, expr); err != nil {
		return errorResult(err.Error())
	}
	return nil
}

type facetValueOutput struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

func facetValuesOutput(values []v1alpha1.FacetValue, limit int) []facetValueOutput {
	values = slices.Clone(values)
	slices.SortStableFunc(values, func(a, b v1alpha1.FacetValue) int {
		switch {
		case a.Count > b.Count:
			return -1
		case a.Count < b.Count:
			return 1
		}
		return 0
	})
	if len(values) > limit {
		values = values[:limit]
	}
	out := make([]facetValueOutput, 0, len(values))
	for _, v := range values {
		out = append(out, facetValueOutput{Value: v.Value, Count: v.Count})
	}
	return out
}

func limitOrDefault(limit, def int) int32 {
	if limit <= 0 {
		return int32(def)
	}
	if limit > int(client.MaxPageSize) {
		return client.MaxPageSize
	}
	return int32(limit)
}

func facetLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultFacetLimit
	case limit > maxFacetLimit:
		return maxFacetLimit
	}
	return limit
}

// Helper functions

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to format results: %v", err)), nil, nil
	}
	return textResult(string(jsonBytes)), nil, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: message},
		},
	}
}
