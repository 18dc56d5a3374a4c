package girder

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Iron-Ham/labelflow/internal/annotation"
	"github.com/Iron-Ham/labelflow/internal/errors"
	"github.com/Iron-Ham/labelflow/internal/groupconfig"
	"github.com/Iron-Ham/labelflow/internal/job"
)

var (
	_ annotation.Store     = (*Client)(nil)
	_ annotation.ItemStore = (*Client)(nil)
	_ job.Store            = (*Client)(nil)
	_ groupconfig.Store    = (*Client)(nil)
)

// unlimited asks Girder for every result instead of the default page of 50.
const unlimited = "0"

// ListAnnotations returns the annotation summaries of an item, newest first.
func (c *Client) ListAnnotations(ctx context.Context, itemID string) ([]annotation.Summary, error) {
	var raw []struct {
		annotation.Summary
		Annotation struct {
			Name string `json:"name"`
		} `json:"annotation"`
	}
	query := url.Values{
		"itemId":  {itemID},
		"sort":    {"created"},
		"sortdir": {"-1"},
		"limit":   {unlimited},
	}
	if err := c.getJSON(ctx, "annotation", query, &raw); err != nil {
		return nil, err
	}
	out := make([]annotation.Summary, len(raw))
	for i, r := range raw {
		out[i] = r.Summary
		out[i].Name = r.Annotation.Name
	}
	return out, nil
}

// Annotation fetches one annotation with its elements.
func (c *Client) Annotation(ctx context.Context, id string) (*annotation.Annotation, error) {
	var a annotation.Annotation
	if err := c.getJSON(ctx, "annotation/"+url.PathEscape(id), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// SaveAnnotation replaces the body of an existing annotation.
func (c *Client) SaveAnnotation(ctx context.Context, a *annotation.Annotation) error {
	if a.ID == "" {
		return errors.NewValidationError("annotation has no id").WithField("_id")
	}
	_, err := c.putJSON(ctx, "annotation/"+url.PathEscape(a.ID), a.Annotation)
	return err
}

// ListItems returns the items of a folder, images and others alike.
func (c *Client) ListItems(ctx context.Context, folderID string) ([]annotation.Item, error) {
	var items []annotation.Item
	query := url.Values{"folderId": {folderID}, "limit": {unlimited}}
	if err := c.getJSON(ctx, "item", query, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ListFolders returns the child folders of a folder.
func (c *Client) ListFolders(ctx context.Context, parentID string) ([]annotation.Folder, error) {
	var folders []annotation.Folder
	query := url.Values{"parentType": {"folder"}, "parentId": {parentID}, "limit": {unlimited}}
	if err := c.getJSON(ctx, "folder", query, &folders); err != nil {
		return nil, err
	}
	return folders, nil
}

// ListJobs returns every job of jobType, ordered by update time.
func (c *Client) ListJobs(ctx context.Context, jobType string) ([]job.Job, error) {
	types, err := json.Marshal([]string{jobType})
	if err != nil {
		return nil, errors.Wrap(err, "encode job types")
	}
	var jobs []job.Job
	query := url.Values{"types": {string(types)}, "sort": {"updated"}, "limit": {unlimited}}
	if err := c.getJSON(ctx, "job/all", query, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Job fetches the current record of a job.
func (c *Client) Job(ctx context.Context, id string) (job.Job, error) {
	var j job.Job
	if err := c.getJSON(ctx, "job/"+url.PathEscape(id), nil, &j); err != nil {
		return job.Job{}, err
	}
	return j, nil
}

// Run starts a new job at jobURL with form parameters.
func (c *Client) Run(ctx context.Context, jobURL string, params map[string]string) (job.Job, error) {
	form := make(url.Values, len(params))
	for k, v := range params {
		form.Set(k, v)
	}
	var j job.Job
	if err := c.postForm(ctx, "slicer_cli_web/"+jobURL+"/run", form, &j); err != nil {
		return job.Job{}, err
	}
	return j, nil
}

// Rerun starts a copy of jobID with the same inputs.
func (c *Client) Rerun(ctx context.Context, jobURL, jobID string) (job.Job, error) {
	form := url.Values{"jobId": {jobID}, "randominput": {strconv.FormatBool(false)}}
	var j job.Job
	if err := c.postForm(ctx, "slicer_cli_web/"+jobURL+"/rerun", form, &j); err != nil {
		return job.Job{}, err
	}
	return j, nil
}

// DockerImages returns the registered CLI images.
func (c *Client) DockerImages(ctx context.Context) (job.DockerImages, error) {
	var images job.DockerImages
	if err := c.getJSON(ctx, "slicer_cli_web/docker_image", nil, &images); err != nil {
		return nil, err
	}
	return images, nil
}

// Descriptor fetches a CLI's XML descriptor. ref may be absolute or relative
// to the API root.
func (c *Client) Descriptor(ctx context.Context, ref string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, ref, nil, nil, "")
}

func configPath(folderID string) string {
	return "folder/" + url.PathEscape(folderID) + "/yaml_config/" + groupconfig.FileName
}

// ReadConfig returns the folder's configuration document. A folder without
// one yields an empty document.
func (c *Client) ReadConfig(ctx context.Context, folderID string) (*groupconfig.Document, error) {
	data, err := c.do(ctx, http.MethodGet, configPath(folderID), nil, nil, "")
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return &groupconfig.Document{}, nil
		}
		return nil, err
	}
	return groupconfig.Decode(data)
}

// WriteConfig replaces the folder's configuration document.
func (c *Client) WriteConfig(ctx context.Context, folderID string, doc *groupconfig.Document) error {
	data, err := groupconfig.Encode(doc)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPut, configPath(folderID), nil, bytes.NewReader(data), "application/x-yaml")
	return err
}
