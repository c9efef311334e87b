package emulation

import (
	"encoding/json"
	"encoding/xml"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/afterdarksys/mockfactory/internal/apperr"
	"github.com/afterdarksys/mockfactory/internal/authctx"
	"github.com/afterdarksys/mockfactory/internal/httpserver"
	"github.com/afterdarksys/mockfactory/pkg/dnsrecord"
)

// Routes mounts every family under /{environmentID}/<service> (/s3, /ec2,
// /lambda, /dynamodb, /sqs, /route53, /iam); the path has no separate
// <cloud> segment. The subdomain form of spec §4.6 is left to a reverse
// proxy rewrite rule rather than duplicated in the mux.
func (rt *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/{environmentID}", func(r chi.Router) {
		r.Route("/s3", rt.s3Routes)
		r.Route("/ec2", rt.ec2Routes)
		r.Route("/lambda", rt.lambdaRoutes)
		r.Route("/dynamodb", rt.dynamodbRoutes)
		r.Route("/sqs", rt.sqsRoutes)
		r.Route("/route53", rt.route53Routes)
		r.Route("/iam", rt.iamRoutes)
	})
	return r
}

// callerAndEnv resolves the authenticated caller and the Environment it's
// trying to act on, writing an error response and returning ok=false if
// either step fails.
func (rt *Router) callerAndEnv(w http.ResponseWriter, r *http.Request) (callerID uuid.UUID, environmentID string, ok bool) {
	identity := authctx.FromContext(r.Context())
	if identity == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return uuid.UUID{}, "", false
	}
	environmentID = chi.URLParam(r, "environmentID")
	if _, err := rt.authorize(r.Context(), identity.UserID, environmentID); err != nil {
		httpserver.RespondErr(w, err)
		return uuid.UUID{}, "", false
	}
	return identity.UserID, environmentID, true
}

// --- S3 -------------------------------------------------------------------

type s3ErrorBody struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

func respondS3Error(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(kind.HTTPStatus())
	_ = xml.NewEncoder(w).Encode(s3ErrorBody{Code: s3ErrorCode(kind), Message: err.Error()})
}

func s3ErrorCode(kind apperr.Kind) string {
	switch kind {
	case apperr.NotFound:
		return "NoSuchBucket"
	case apperr.Forbidden:
		return "AccessDenied"
	case apperr.InvalidRequest:
		return "InvalidRequest"
	default:
		return "InternalError"
	}
}

func (rt *Router) s3Routes(r chi.Router) {
	r.Put("/{bucket}", rt.handleS3CreateBucket)
	r.Delete("/{bucket}", rt.handleS3DeleteBucket)
	r.Get("/", rt.handleS3ListBuckets)
	r.Put("/{bucket}/{key}", rt.handleS3PutObject)
	r.Get("/{bucket}/{key}", rt.handleS3GetObject)
	r.Delete("/{bucket}/{key}", rt.handleS3DeleteObject)
	r.Get("/{bucket}", rt.handleS3ListObjects)
}

func (rt *Router) handleS3CreateBucket(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	if err := rt.s3.CreateBucket(r.Context(), envID, chi.URLParam(r, "bucket")); err != nil {
		respondS3Error(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (rt *Router) handleS3DeleteBucket(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	if err := rt.s3.DeleteBucket(r.Context(), envID, chi.URLParam(r, "bucket")); err != nil {
		respondS3Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handleS3ListBuckets(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	buckets, err := rt.s3.ListBuckets(r.Context(), envID)
	if err != nil {
		respondS3Error(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, buckets)
}

func (rt *Router) handleS3PutObject(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_request", "reading body")
		return
	}
	etag, err := rt.s3.PutObject(r.Context(), envID, chi.URLParam(r, "bucket"), chi.URLParam(r, "key"), body)
	if err != nil {
		respondS3Error(w, err)
		return
	}
	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusOK)
}

func (rt *Router) handleS3GetObject(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	body, err := rt.s3.GetObject(r.Context(), envID, chi.URLParam(r, "bucket"), chi.URLParam(r, "key"))
	if err != nil {
		respondS3Error(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(body)
}

func (rt *Router) handleS3DeleteObject(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	if err := rt.s3.DeleteObject(r.Context(), envID, chi.URLParam(r, "bucket"), chi.URLParam(r, "key")); err != nil {
		respondS3Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handleS3ListObjects(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	items, err := rt.s3.ListObjectsV2(r.Context(), envID, chi.URLParam(r, "bucket"))
	if err != nil {
		respondS3Error(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, items)
}

// --- EC2 --------------------------------------------------------------

func (rt *Router) ec2Routes(r chi.Router) {
	r.Post("/instances", rt.handleEC2Run)
	r.Get("/instances", rt.handleEC2Describe)
	r.Post("/instances/{id}/start", rt.handleEC2Start)
	r.Post("/instances/{id}/stop", rt.handleEC2Stop)
	r.Delete("/instances/{id}", rt.handleEC2Terminate)
}

type runInstancesRequest struct {
	InstanceType   string `json:"instance_type"`
	AssignPublicIP bool   `json:"assign_public_ip"`
}

func (rt *Router) handleEC2Run(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	var req runInstancesRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	instance, err := rt.ec2.RunInstances(r.Context(), envID, req.InstanceType, req.AssignPublicIP)
	if err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, instance)
}

func (rt *Router) handleEC2Describe(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	instances, err := rt.ec2.DescribeInstances(r.Context(), envID)
	if err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, instances)
}

func (rt *Router) handleEC2Start(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	if err := rt.ec2.StartInstances(r.Context(), envID, chi.URLParam(r, "id")); err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (rt *Router) handleEC2Stop(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	if err := rt.ec2.StopInstances(r.Context(), envID, chi.URLParam(r, "id")); err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (rt *Router) handleEC2Terminate(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	if err := rt.ec2.TerminateInstances(r.Context(), envID, chi.URLParam(r, "id")); err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// --- Lambda -------------------------------------------------------------

func (rt *Router) lambdaRoutes(r chi.Router) {
	r.Post("/functions", rt.handleLambdaCreate)
	r.Get("/functions", rt.handleLambdaList)
	r.Get("/functions/{name}", rt.handleLambdaGet)
	r.Delete("/functions/{name}", rt.handleLambdaDelete)
	r.Post("/functions/{name}/invocations", rt.handleLambdaInvoke)
}

type createFunctionRequest struct {
	Name        string            `json:"name"`
	Runtime     string            `json:"runtime"`
	Handler     string            `json:"handler"`
	MemoryMB    int               `json:"memory_mb"`
	TimeoutSecs int               `json:"timeout_secs"`
	EnvVars     map[string]string `json:"env_vars"`
}

func (rt *Router) handleLambdaCreate(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	var req createFunctionRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if req.TimeoutSecs <= 0 {
		req.TimeoutSecs = 30
	}
	fn, err := rt.lambda.CreateFunction(r.Context(), lambdaFunctionRow{
		Name: req.Name, EnvironmentID: envID, Runtime: req.Runtime,
		Handler: req.Handler, MemoryMB: req.MemoryMB, TimeoutSecs: req.TimeoutSecs, EnvVars: req.EnvVars,
	})
	if err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, toFunctionConfiguration(fn))
}

func (rt *Router) handleLambdaList(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	fns, err := rt.lambda.ListFunctions(r.Context(), envID)
	if err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	configs := make([]lambdatypes.FunctionConfiguration, 0, len(fns))
	for _, fn := range fns {
		configs = append(configs, toFunctionConfiguration(fn))
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"Functions": configs})
}

func (rt *Router) handleLambdaGet(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	fn, err := rt.lambda.GetFunction(r.Context(), envID, chi.URLParam(r, "name"))
	if err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, toFunctionConfiguration(fn))
}

func (rt *Router) handleLambdaDelete(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	if err := rt.lambda.DeleteFunction(r.Context(), envID, chi.URLParam(r, "name")); err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handleLambdaInvoke(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	event, err := io.ReadAll(r.Body)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_request", "reading event body")
		return
	}
	result, err := rt.lambda.Invoke(r.Context(), envID, chi.URLParam(r, "name"), event)
	if err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, result)
}

// --- DynamoDB -----------------------------------------------------------

func (rt *Router) dynamodbRoutes(r chi.Router) {
	r.Post("/tables", rt.handleDynamoCreateTable)
	r.Get("/tables/{name}", rt.handleDynamoDescribeTable)
	r.Delete("/tables/{name}", rt.handleDynamoDeleteTable)
	r.Put("/tables/{name}/items", rt.handleDynamoPutItem)
	r.Get("/tables/{name}/items", rt.handleDynamoGetOrQueryItems)
	r.Delete("/tables/{name}/items", rt.handleDynamoDeleteItem)
}

type createTableRequest struct {
	Name     string `json:"name"`
	HashKey  string `json:"hash_key"`
	RangeKey string `json:"range_key,omitempty"`
}

func (rt *Router) handleDynamoCreateTable(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	var req createTableRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	table, err := rt.dynamodb.CreateTable(r.Context(), envID, req.Name, req.HashKey, req.RangeKey)
	if err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, table)
}

func (rt *Router) handleDynamoDescribeTable(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	table, err := rt.dynamodb.DescribeTable(r.Context(), envID, chi.URLParam(r, "name"))
	if err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, table)
}

func (rt *Router) handleDynamoDeleteTable(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	if err := rt.dynamodb.DeleteTable(r.Context(), envID, chi.URLParam(r, "name")); err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type putItemRequest struct {
	HashValue  string         `json:"hash_value"`
	RangeValue string         `json:"range_value,omitempty"`
	Attributes map[string]any `json:"attributes"`
	Condition  *Condition     `json:"condition,omitempty"`
}

func (rt *Router) handleDynamoPutItem(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	tableName := chi.URLParam(r, "name")
	table, err := rt.dynamodb.DescribeTable(r.Context(), envID, tableName)
	if err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	var req putItemRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if err := rt.dynamodb.PutItem(r.Context(), envID, table, req.HashValue, req.RangeValue, req.Attributes, req.Condition); err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (rt *Router) handleDynamoGetOrQueryItems(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	tableName := chi.URLParam(r, "name")
	hashValue := r.URL.Query().Get("hash_value")
	if rangeValue := r.URL.Query().Get("range_value"); rangeValue != "" {
		item, err := rt.dynamodb.GetItem(r.Context(), envID, tableName, hashValue, rangeValue)
		if err != nil {
			httpserver.RespondErr(w, err)
			return
		}
		httpserver.Respond(w, http.StatusOK, item)
		return
	}
	items, err := rt.dynamodb.Query(r.Context(), envID, tableName, hashValue)
	if err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, items)
}

func (rt *Router) handleDynamoDeleteItem(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	hashValue := r.URL.Query().Get("hash_value")
	rangeValue := r.URL.Query().Get("range_value")
	if err := rt.dynamodb.DeleteItem(r.Context(), envID, chi.URLParam(r, "name"), hashValue, rangeValue); err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- SQS ------------------------------------------------------------------

func (rt *Router) sqsRoutes(r chi.Router) {
	r.Post("/queues", rt.handleSQSCreateQueue)
	r.Post("/queues/{name}/messages", rt.handleSQSSendMessage)
	r.Get("/queues/{name}/messages", rt.handleSQSReceiveMessage)
	r.Delete("/queues/{name}/messages/{receiptHandle}", rt.handleSQSDeleteMessage)
	r.Patch("/queues/{name}/messages/{receiptHandle}/visibility", rt.handleSQSChangeVisibility)
}

type createQueueRequest struct {
	Name string `json:"name"`
	FIFO bool   `json:"fifo"`
}

func (rt *Router) handleSQSCreateQueue(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	var req createQueueRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	queue, err := rt.sqs.CreateQueue(r.Context(), envID, req.Name, req.FIFO)
	if err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, queue)
}

type sendMessageRequest struct {
	Body string `json:"body"`
}

func (rt *Router) handleSQSSendMessage(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	var req sendMessageRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	id, err := rt.sqs.SendMessage(r.Context(), envID, chi.URLParam(r, "name"), req.Body)
	if err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"message_id": id})
}

func (rt *Router) handleSQSReceiveMessage(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	maxMessages, _ := strconv.Atoi(r.URL.Query().Get("max_messages"))
	messages, err := rt.sqs.ReceiveMessage(r.Context(), envID, chi.URLParam(r, "name"), maxMessages)
	if err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, messages)
}

func (rt *Router) handleSQSDeleteMessage(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	if err := rt.sqs.DeleteMessage(r.Context(), envID, chi.URLParam(r, "name"), chi.URLParam(r, "receiptHandle")); err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type changeVisibilityRequest struct {
	TimeoutSecs int `json:"timeout_secs"`
}

func (rt *Router) handleSQSChangeVisibility(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	var req changeVisibilityRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	err := rt.sqs.ChangeMessageVisibility(r.Context(), envID, chi.URLParam(r, "name"), chi.URLParam(r, "receiptHandle"), time.Duration(req.TimeoutSecs)*time.Second)
	if err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// --- Route53 ----------------------------------------------------------

func (rt *Router) route53Routes(r chi.Router) {
	r.Post("/rrsets", rt.handleRoute53Change)
	r.Get("/rrsets", rt.handleRoute53List)
	r.Delete("/rrsets/{id}", rt.handleRoute53Delete)
}

func (rt *Router) handleRoute53Change(w http.ResponseWriter, r *http.Request) {
	callerID, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	var changes []dnsrecord.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_request", "decoding change batch")
		return
	}
	results, err := rt.route53.ChangeResourceRecordSets(r.Context(), callerID, envID, changes)
	if err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, results)
}

func (rt *Router) handleRoute53List(w http.ResponseWriter, r *http.Request) {
	callerID, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	sets, err := rt.route53.ListResourceRecordSets(r.Context(), callerID, envID)
	if err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, sets)
}

func (rt *Router) handleRoute53Delete(w http.ResponseWriter, r *http.Request) {
	callerID, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_request", "invalid record id")
		return
	}
	if err := rt.route53.DeleteResourceRecordSet(r.Context(), callerID, envID, id); err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- IAM ------------------------------------------------------------------

func (rt *Router) iamRoutes(r chi.Router) {
	r.Post("/users", rt.handleIAMCreateUser)
	r.Get("/users", rt.handleIAMListUsers)
	r.Get("/users/{name}", rt.handleIAMGetUser)
	r.Delete("/users/{name}", rt.handleIAMDeleteUser)
	r.Post("/roles", rt.handleIAMCreateRole)
	r.Delete("/roles/{name}", rt.handleIAMDeleteRole)
}

type iamNameRequest struct {
	Name string `json:"name"`
}

func (rt *Router) handleIAMCreateUser(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	var req iamNameRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	user, err := rt.iam.CreateUser(r.Context(), envID, req.Name)
	if err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, user)
}

func (rt *Router) handleIAMGetUser(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	user, err := rt.iam.GetUser(r.Context(), envID, chi.URLParam(r, "name"))
	if err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, user)
}

func (rt *Router) handleIAMListUsers(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	users, err := rt.iam.ListUsers(r.Context(), envID)
	if err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, users)
}

func (rt *Router) handleIAMDeleteUser(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	if err := rt.iam.DeleteUser(r.Context(), envID, chi.URLParam(r, "name")); err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handleIAMCreateRole(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	var req iamNameRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	role, err := rt.iam.CreateRole(r.Context(), envID, req.Name)
	if err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, role)
}

func (rt *Router) handleIAMDeleteRole(w http.ResponseWriter, r *http.Request) {
	_, envID, ok := rt.callerAndEnv(w, r)
	if !ok {
		return
	}
	if err := rt.iam.DeleteRole(r.Context(), envID, chi.URLParam(r, "name")); err != nil {
		httpserver.RespondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
