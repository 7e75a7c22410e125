// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package locifilter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"git.arvados.org/arvados.git/lib/cmd"
	"git.arvados.org/arvados.git/sdk/go/arvados"
	"git.arvados.org/arvados.git/sdk/go/arvadosclient"
	"git.arvados.org/arvados.git/sdk/go/keepclient"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

const (
	// containerImage is the docker image remote filter runs use.
	containerImage = "locifilter-runtime"

	containerOutput = "/mnt/output"
	containerCmdDir = "/mnt/cmd"
)

// containerRunner runs one invocation of this program as an Arvados
// container request and waits for its output collection.
type containerRunner struct {
	Client      *arvados.Client
	Name        string
	OutputName  string
	ProjectUUID string
	VCPUs       int
	RAM         int64
	Args        []string
	Mounts      map[string]map[string]interface{}
	Priority    int
	Preemptible bool

	// PollInterval is how often the request state and stderr log
	// are checked. Defaults to 5s.
	PollInterval time.Duration
}

// collectionInPathRe matches a path that starts with (or contains)
// a collection UUID or portable data hash.
var collectionInPathRe = regexp.MustCompile(`^(.*/)?([0-9a-f]{32}\+[0-9]+|[0-9a-z]{5}-[0-9a-z]{5}-[0-9a-z]{15})(/.*)?$`)

// TranslatePaths rewrites collection paths (store directory, params
// file) to where the collection is mounted in the container.
func (runner *containerRunner) TranslatePaths(paths ...*string) error {
	if runner.Mounts == nil {
		runner.Mounts = map[string]map[string]interface{}{}
	}
	for _, path := range paths {
		if *path == "" || *path == "-" {
			continue
		}
		m := collectionInPathRe.FindStringSubmatch(*path)
		if m == nil {
			return fmt.Errorf("%q is not in a collection", *path)
		}
		id, rest := m[2], m[3]
		mnt := "/mnt/" + id
		if _, ok := runner.Mounts[mnt]; !ok {
			key := "portable_data_hash"
			if len(id) == 27 {
				key = "uuid"
			}
			runner.Mounts[mnt] = map[string]interface{}{"kind": "collection", key: id}
		}
		*path = mnt + rest
	}
	return nil
}

// RunContext submits the container request and returns the output
// collection UUID once the container has finished successfully.
// Cancelling ctx sets the request priority to zero.
func (runner *containerRunner) RunContext(ctx context.Context) (string, error) {
	if runner.ProjectUUID == "" {
		return "", errors.New("cannot run arvados container: no project UUID given (-project)")
	}
	cmdUUID, err := runner.commandCollection()
	if err != nil {
		return "", fmt.Errorf("uploading program: %w", err)
	}
	cr, err := runner.submit(ctx, cmdUUID)
	if err != nil {
		return "", err
	}
	log.WithField("uuid", cr.UUID).Info("submitted container request")
	err = runner.wait(ctx, cr)
	if err != nil {
		return "", err
	}
	var c arvados.Container
	err = runner.Client.RequestAndDecodeContext(ctx, &c, "GET", "arvados/v1/containers/"+cr.ContainerUUID, nil, nil)
	switch {
	case err != nil:
		return "", err
	case c.State != arvados.ContainerStateComplete:
		return "", fmt.Errorf("container %s did not complete: %s", c.UUID, c.State)
	case c.ExitCode != 0:
		return "", fmt.Errorf("container %s exited %d", c.UUID, c.ExitCode)
	}
	return cr.OutputUUID, nil
}

func (runner *containerRunner) submit(ctx context.Context, cmdUUID string) (*arvados.ContainerRequest, error) {
	mounts := map[string]map[string]interface{}{
		containerOutput: {"kind": "collection", "writable": true},
		containerCmdDir: {"kind": "collection", "uuid": cmdUUID},
	}
	for path, mnt := range runner.Mounts {
		mounts[path] = mnt
	}
	priority := runner.Priority
	if priority < 1 {
		priority = 500
	}
	rc := arvados.RuntimeConstraints{
		VCPUs: runner.VCPUs,
		RAM:   runner.RAM,
		// Store chunks are read through the keep cache, two
		// 64 MiB blocks per concurrent chunk task.
		KeepCacheRAM: 2 << 26 * int64(runner.VCPUs),
	}
	attrs := map[string]interface{}{
		"owner_uuid":          runner.ProjectUUID,
		"name":                runner.Name,
		"container_image":     containerImage,
		"command":             append([]string{containerCmdDir + "/locifilter"}, runner.Args...),
		"mounts":              mounts,
		"use_existing":        true,
		"output_path":         containerOutput,
		"runtime_constraints": rc,
		"priority":            priority,
		"state":               arvados.ContainerRequestStateCommitted,
		"container_count_max": 1,
		"scheduling_parameters": arvados.SchedulingParameters{
			Preemptible: runner.Preemptible,
			Partitions:  []string{},
		},
		"environment": map[string]string{
			"GOMAXPROCS": strconv.Itoa(runner.VCPUs),
		},
	}
	if runner.OutputName != "" {
		attrs["output_name"] = runner.OutputName
	}
	var cr arvados.ContainerRequest
	err := runner.Client.RequestAndDecodeContext(ctx, &cr, "POST", "arvados/v1/container_requests", nil, map[string]interface{}{
		"container_request": attrs,
	})
	if err != nil {
		return nil, err
	}
	return &cr, nil
}

// wait polls cr until it is final, copying the container's stderr
// to our log as it grows.
func (runner *containerRunner) wait(ctx context.Context, cr *arvados.ContainerRequest) error {
	interval := runner.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	state := cr.State
	var logged int64
	for cr.State != arvados.ContainerRequestStateFinal {
		select {
		case <-ctx.Done():
			runner.cancel(cr.UUID)
			return ctx.Err()
		case <-ticker.C:
		}
		err := runner.Client.RequestAndDecodeContext(ctx, cr, "GET", "arvados/v1/container_requests/"+cr.UUID, nil, nil)
		if err != nil {
			log.Warnf("polling container request %s: %s", cr.UUID, err)
			continue
		}
		if cr.State != state {
			log.WithField("uuid", cr.UUID).Infof("container request state %s", cr.State)
			state = cr.State
		}
		if cr.ContainerUUID != "" {
			logged = runner.copyLog(ctx, cr, logged)
		}
	}
	return nil
}

func (runner *containerRunner) cancel(uuid string) {
	var cr arvados.ContainerRequest
	err := runner.Client.RequestAndDecode(&cr, "PATCH", "arvados/v1/container_requests/"+uuid, nil, map[string]interface{}{
		"container_request": map[string]interface{}{"priority": 0},
	})
	if err != nil {
		log.Errorf("cancelling container request %s: %s", uuid, err)
	}
}

// copyLog logs the complete lines of the container's stderr.txt
// after byte offset from, and returns the offset after the last
// complete line. Errors are logged and leave the offset unchanged.
func (runner *containerRunner) copyLog(ctx context.Context, cr *arvados.ContainerRequest, from int64) int64 {
	url := "https://" + runner.Client.APIHost + "/arvados/v1/container_requests/" + cr.UUID + "/log/" + cr.ContainerUUID + "/stderr.txt"
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		log.Errorf("container log: %s", err)
		return from
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-", from))
	resp, err := runner.Client.Do(req)
	if err != nil {
		log.Errorf("container log: %s", err)
		return from
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound && from == 0,
		resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && from > 0:
		// nothing (new) yet
		return from
	case resp.StatusCode >= 300:
		log.Errorf("container log: %s", resp.Status)
		return from
	}
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Errorf("container log: %s", err)
		return from
	}
	end := bytes.LastIndexByte(buf, '\n') + 1
	for _, line := range bytes.Split(buf[:end], []byte{'\n'}) {
		if len(line) > 0 {
			log.Print(string(line))
		}
	}
	return from + int64(end)
}

var commandCollectionMtx sync.Mutex

// commandCollection returns the UUID of a collection in the target
// project holding this executable as "locifilter", uploading it
// unless a collection with the same version and blake2b digest is
// already there.
func (runner *containerRunner) commandCollection() (string, error) {
	commandCollectionMtx.Lock()
	defer commandCollectionMtx.Unlock()
	exe, err := os.ReadFile("/proc/self/exe")
	if err != nil {
		return "", err
	}
	digest := fmt.Sprintf("%x", blake2b.Sum256(exe))
	name := "locifilter " + cmd.Version.String()
	var found arvados.CollectionList
	err = runner.Client.RequestAndDecode(&found, "GET", "arvados/v1/collections", nil, arvados.ListOptions{
		Limit: 1,
		Count: "none",
		Filters: []arvados.Filter{
			{Attr: "owner_uuid", Operator: "=", Operand: runner.ProjectUUID},
			{Attr: "name", Operator: "=", Operand: name},
			{Attr: "properties.blake2b", Operator: "=", Operand: digest},
		},
	})
	if err != nil {
		return "", err
	}
	if len(found.Items) > 0 {
		log.Debugf("reusing program collection %s", found.Items[0].UUID)
		return found.Items[0].UUID, nil
	}
	manifest, err := runner.uploadFile("locifilter", exe)
	if err != nil {
		return "", err
	}
	var coll arvados.Collection
	err = runner.Client.RequestAndDecode(&coll, "POST", "arvados/v1/collections", nil, map[string]interface{}{
		"collection": map[string]interface{}{
			"owner_uuid":    runner.ProjectUUID,
			"name":          name,
			"manifest_text": manifest,
			"properties":    map[string]interface{}{"blake2b": digest},
		},
	})
	if err != nil {
		return "", err
	}
	log.Infof("uploaded program to collection %s", coll.UUID)
	return coll.UUID, nil
}

// uploadFile writes data to keep as a one-file collection and
// returns its manifest text.
func (runner *containerRunner) uploadFile(name string, data []byte) (string, error) {
	ac, err := arvadosclient.New(runner.Client)
	if err != nil {
		return "", err
	}
	var coll arvados.Collection
	fs, err := coll.FileSystem(runner.Client, keepclient.New(ac))
	if err != nil {
		return "", err
	}
	f, err := fs.OpenFile(name, os.O_CREATE|os.O_WRONLY, 0777)
	if err != nil {
		return "", err
	}
	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", err
	}
	return fs.MarshalManifest(".")
}
