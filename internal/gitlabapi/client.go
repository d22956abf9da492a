package gitlabapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	apiPathPrefixConstant                    = "/api/v4"
	versionEndpointConstant                  = "/version"
	groupsEndpointConstant                   = "/groups"
	projectsEndpointConstant                 = "/projects"
	groupByPathEndpointTemplateConstant      = "/groups/%s"
	groupProjectsEndpointTemplateConstant    = "/groups/%d/projects"
	groupSubgroupsEndpointTemplateConstant   = "/groups/%d/subgroups"
	projectUpdateEndpointTemplateConstant    = "/projects/%d"
	searchQueryParameterNameConstant         = "search"
	perPageQueryParameterNameConstant        = "per_page"
	perPageQueryParameterValueConstant       = "100"
	pageQueryParameterNameConstant           = "page"
	nextPageHeaderNameConstant               = "X-Next-Page"
	firstPageNumberConstant                  = "1"
	descriptionFormFieldNameConstant         = "description"
	privateTokenHeaderNameConstant           = "PRIVATE-TOKEN"
	contentTypeHeaderNameConstant            = "Content-Type"
	jsonContentTypeConstant                  = "application/json"
	formContentTypeConstant                  = "application/x-www-form-urlencoded"
	requestCreationErrorTemplateConstant     = "%s request creation failed: %w"
	requestExecutionErrorTemplateConstant    = "%s request failed: %w"
	responseDecodingErrorTemplateConstant    = "%s response decoding failed: %w"
	payloadEncodingErrorTemplateConstant     = "%s payload encoding failed: %w"
	operationStatusErrorTemplateConstant     = "%s returned status %d"
	authenticationErrorTemplateConstant      = "authentication rejected by %s (status %d)"
	defaultRequestTimeoutConstant            = 30 * time.Second
	probeVersionOperationNameConstant        = OperationName("ProbeVersion")
	searchGroupsOperationNameConstant        = OperationName("SearchGroups")
	groupByPathOperationNameConstant         = OperationName("GetGroupByPath")
	listGroupProjectsOperationNameConstant   = OperationName("ListGroupProjects")
	listGroupSubgroupsOperationNameConstant  = OperationName("ListGroupSubgroups")
	createGroupOperationNameConstant         = OperationName("CreateGroup")
	searchProjectsOperationNameConstant      = OperationName("SearchProjects")
	updateDescriptionOperationNameConstant   = OperationName("UpdateProjectDescription")
)

// OperationName identifies a named API operation supported by the client.
type OperationName string

// AuthenticationError reports credentials rejected by a hosting instance.
type AuthenticationError struct {
	InstanceURL string
	StatusCode  int
}

// Error describes the rejected authentication attempt.
func (authenticationError AuthenticationError) Error() string {
	return fmt.Sprintf(authenticationErrorTemplateConstant, authenticationError.InstanceURL, authenticationError.StatusCode)
}

// OperationError reports an API operation completing with an unexpected status.
type OperationError struct {
	Operation  OperationName
	StatusCode int
}

// Error describes the failed operation.
func (operationError OperationError) Error() string {
	return fmt.Sprintf(operationStatusErrorTemplateConstant, operationError.Operation, operationError.StatusCode)
}

// HTTPClient abstracts HTTP request execution for the API client.
type HTTPClient interface {
	Do(request *http.Request) (*http.Response, error)
}

// Client performs v4 group and project API operations against hosting instances.
type Client struct {
	httpClient HTTPClient
}

// NewClient constructs a Client using the provided HTTP collaborator or a default one.
func NewClient(httpClient HTTPClient) *Client {
	resolvedHTTPClient := httpClient
	if resolvedHTTPClient == nil {
		resolvedHTTPClient = &http.Client{Timeout: defaultRequestTimeoutConstant}
	}
	return &Client{httpClient: resolvedHTTPClient}
}

// ProbeVersion verifies connectivity and credentials against the instance.
func (client *Client) ProbeVersion(executionContext context.Context, instance Instance) error {
	var discardedPayload map[string]any
	return client.executeJSONRequest(executionContext, probeVersionOperationNameConstant, instance, http.MethodGet, versionEndpointConstant, nil, "", &discardedPayload)
}

// SearchGroups returns groups whose names match the provided fragment,
// following pagination until every page is collected.
func (client *Client) SearchGroups(executionContext context.Context, instance Instance, nameFragment string) ([]Group, error) {
	queryValues := url.Values{}
	queryValues.Set(searchQueryParameterNameConstant, nameFragment)

	return client.fetchGroupPages(executionContext, searchGroupsOperationNameConstant, instance, groupsEndpointConstant, queryValues)
}

// GetGroupByPath fetches a group by its URL-encoded full path.
//
// A 404 response reports found=false rather than an error so callers can
// distinguish absence from transport failures.
func (client *Client) GetGroupByPath(executionContext context.Context, instance Instance, fullPath string) (Group, bool, error) {
	endpoint := fmt.Sprintf(groupByPathEndpointTemplateConstant, url.PathEscape(fullPath))

	var fetchedGroup Group
	requestError := client.executeJSONRequest(executionContext, groupByPathOperationNameConstant, instance, http.MethodGet, endpoint, nil, "", &fetchedGroup)
	if requestError != nil {
		var operationFailure OperationError
		if errors.As(requestError, &operationFailure) && operationFailure.StatusCode == http.StatusNotFound {
			return Group{}, false, nil
		}
		return Group{}, false, requestError
	}
	return fetchedGroup, true, nil
}

// ListGroupProjects returns every project directly contained in the group,
// following pagination until every page is collected.
func (client *Client) ListGroupProjects(executionContext context.Context, instance Instance, groupIdentifier int) ([]Project, error) {
	endpoint := fmt.Sprintf(groupProjectsEndpointTemplateConstant, groupIdentifier)

	return client.fetchProjectPages(executionContext, listGroupProjectsOperationNameConstant, instance, endpoint, url.Values{})
}

// ListGroupSubgroups returns every group directly nested beneath the group,
// following pagination until every page is collected.
func (client *Client) ListGroupSubgroups(executionContext context.Context, instance Instance, groupIdentifier int) ([]Group, error) {
	endpoint := fmt.Sprintf(groupSubgroupsEndpointTemplateConstant, groupIdentifier)

	return client.fetchGroupPages(executionContext, listGroupSubgroupsOperationNameConstant, instance, endpoint, url.Values{})
}

// CreateGroup creates a group beneath the payload's parent.
func (client *Client) CreateGroup(executionContext context.Context, instance Instance, payload GroupCreatePayload) (Group, error) {
	encodedPayload, encodingError := json.Marshal(payload)
	if encodingError != nil {
		return Group{}, fmt.Errorf(payloadEncodingErrorTemplateConstant, createGroupOperationNameConstant, encodingError)
	}

	var createdGroup Group
	requestError := client.executeJSONRequest(executionContext, createGroupOperationNameConstant, instance, http.MethodPost, groupsEndpointConstant, bytes.NewReader(encodedPayload), jsonContentTypeConstant, &createdGroup)
	if requestError != nil {
		return Group{}, requestError
	}
	return createdGroup, nil
}

// SearchProjects returns projects whose names match the provided fragment,
// following pagination until every page is collected.
func (client *Client) SearchProjects(executionContext context.Context, instance Instance, nameFragment string) ([]Project, error) {
	queryValues := url.Values{}
	queryValues.Set(searchQueryParameterNameConstant, nameFragment)

	return client.fetchProjectPages(executionContext, searchProjectsOperationNameConstant, instance, projectsEndpointConstant, queryValues)
}

// UpdateProjectDescription sets the description of the identified project.
func (client *Client) UpdateProjectDescription(executionContext context.Context, instance Instance, projectIdentifier int, description string) error {
	endpoint := fmt.Sprintf(projectUpdateEndpointTemplateConstant, projectIdentifier)

	formValues := url.Values{}
	formValues.Set(descriptionFormFieldNameConstant, description)

	var updatedProject Project
	return client.executeJSONRequest(executionContext, updateDescriptionOperationNameConstant, instance, http.MethodPut, endpoint, strings.NewReader(formValues.Encode()), formContentTypeConstant, &updatedProject)
}

// fetchGroupPages collects group listings page by page until the instance
// stops announcing a next page.
func (client *Client) fetchGroupPages(executionContext context.Context, operation OperationName, instance Instance, basePath string, queryValues url.Values) ([]Group, error) {
	var collectedGroups []Group
	currentPage := firstPageNumberConstant
	for {
		var groupPage []Group
		nextPage, pageError := client.executePagedJSONRequest(executionContext, operation, instance, http.MethodGet, basePath+"?"+pagedQueryString(queryValues, currentPage), nil, "", &groupPage)
		if pageError != nil {
			return nil, pageError
		}
		collectedGroups = append(collectedGroups, groupPage...)
		if len(nextPage) == 0 || nextPage == currentPage {
			return collectedGroups, nil
		}
		currentPage = nextPage
	}
}

// fetchProjectPages collects project listings page by page until the instance
// stops announcing a next page.
func (client *Client) fetchProjectPages(executionContext context.Context, operation OperationName, instance Instance, basePath string, queryValues url.Values) ([]Project, error) {
	var collectedProjects []Project
	currentPage := firstPageNumberConstant
	for {
		var projectPage []Project
		nextPage, pageError := client.executePagedJSONRequest(executionContext, operation, instance, http.MethodGet, basePath+"?"+pagedQueryString(queryValues, currentPage), nil, "", &projectPage)
		if pageError != nil {
			return nil, pageError
		}
		collectedProjects = append(collectedProjects, projectPage...)
		if len(nextPage) == 0 || nextPage == currentPage {
			return collectedProjects, nil
		}
		currentPage = nextPage
	}
}

// pagedQueryString renders the query values with the page and per_page
// parameters set for the requested page.
func pagedQueryString(queryValues url.Values, pageNumber string) string {
	pagedValues := url.Values{}
	for parameterName, parameterValues := range queryValues {
		pagedValues[parameterName] = parameterValues
	}
	pagedValues.Set(perPageQueryParameterNameConstant, perPageQueryParameterValueConstant)
	pagedValues.Set(pageQueryParameterNameConstant, pageNumber)
	return pagedValues.Encode()
}

func (client *Client) executeJSONRequest(executionContext context.Context, operation OperationName, instance Instance, method string, endpoint string, body io.Reader, contentType string, target any) error {
	_, requestError := client.executePagedJSONRequest(executionContext, operation, instance, method, endpoint, body, contentType, target)
	return requestError
}

// executePagedJSONRequest performs one request and reports the instance's
// next page number alongside the decoded payload. An empty next page marks
// the final page of a listing.
func (client *Client) executePagedJSONRequest(executionContext context.Context, operation OperationName, instance Instance, method string, endpoint string, body io.Reader, contentType string, target any) (string, error) {
	requestURL := strings.TrimRight(instance.BaseURL, "/") + apiPathPrefixConstant + endpoint

	httpRequest, requestCreationError := http.NewRequestWithContext(executionContext, method, requestURL, body)
	if requestCreationError != nil {
		return "", fmt.Errorf(requestCreationErrorTemplateConstant, operation, requestCreationError)
	}

	httpRequest.Header.Set(privateTokenHeaderNameConstant, instance.Token)
	if len(contentType) > 0 {
		httpRequest.Header.Set(contentTypeHeaderNameConstant, contentType)
	}

	httpResponse, executionError := client.httpClient.Do(httpRequest)
	if executionError != nil {
		return "", fmt.Errorf(requestExecutionErrorTemplateConstant, operation, executionError)
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode == http.StatusUnauthorized || httpResponse.StatusCode == http.StatusForbidden {
		return "", AuthenticationError{InstanceURL: instance.BaseURL, StatusCode: httpResponse.StatusCode}
	}

	if httpResponse.StatusCode < http.StatusOK || httpResponse.StatusCode >= http.StatusMultipleChoices {
		return "", OperationError{Operation: operation, StatusCode: httpResponse.StatusCode}
	}

	nextPageNumber := strings.TrimSpace(httpResponse.Header.Get(nextPageHeaderNameConstant))

	if target == nil {
		return nextPageNumber, nil
	}

	if decodingError := json.NewDecoder(httpResponse.Body).Decode(target); decodingError != nil {
		return "", fmt.Errorf(responseDecodingErrorTemplateConstant, operation, decodingError)
	}

	return nextPageNumber, nil
}
