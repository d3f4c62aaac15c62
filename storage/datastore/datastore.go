// Package datastore backs the directory read port with Google Cloud
// Datastore. Rule and membership persistence stays on the sql provider;
// this backend exists for deployments whose identity sync already lands in
// Datastore.
package datastore

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
)

const ProviderKey = "datastore"

const (
	kindUser    = "DirUser"
	kindOrgNode = "DirOrgNode"
)

type Provider struct {
	client    dataStoreClient
	ProjectID string `json:"projectId"`
}

func FromJson(data []byte) (*Provider, error) {
	p := &Provider{}
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, p.Init()
}

func (p *Provider) Init() error {
	var err error
	p.client, err = datastore.NewClient(context.Background(), p.ProjectID,
		option.WithGRPCDialOption(grpc.WithReturnConnectionError()),
		option.WithGRPCDialOption(grpc.WithTimeout(time.Second*5)),
		option.WithGRPCDialOption(grpc.WithDisableRetry()))
	return err
}

func (p *Provider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

type userEntity struct {
	ID           string
	Name         string
	Email        string
	Department   string
	DepartmentID string
	Location     string
	LocationID   string
	JobTitle     string
	Manager      string
	OrgUnitPath  string
	EmployeeType string
	UserType     string
	CostCenter   string
	Status       string
	DeletedAt    time.Time
	CustomFields []byte `datastore:",noindex"`
}

type nodeEntity struct {
	ID     string
	Kind   string
	Name   string
	Parent string
}

func (u *userEntity) dsID() *datastore.Key {
	return datastore.NameKey(kindUser, u.ID, nil)
}

func (n *nodeEntity) dsID() *datastore.Key {
	return datastore.NameKey(kindOrgNode, n.Kind+"/"+n.ID, nil)
}

type dataStoreClient interface {
	io.Closer
	Get(ctx context.Context, key *datastore.Key, dst interface{}) (err error)
	Put(ctx context.Context, key *datastore.Key, src interface{}) (*datastore.Key, error)
	GetAll(ctx context.Context, q *datastore.Query, dst interface{}) (keys []*datastore.Key, err error)
}
