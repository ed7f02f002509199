package mongo

import (
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// migrationIndexes returns the index set per collection. Queries the
// deduction engine runs on every consumption event (member + status,
// group + status) get compound indexes; the rest are lookup paths.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colDefinitions: {
			{Keys: bson.D{{Key: "org_id", Value: 1}, {Key: "active", Value: 1}}},
		},
		colMemberPackages: {
			{Keys: bson.D{{Key: "org_id", Value: 1}, {Key: "member_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "org_id", Value: 1}, {Key: "group_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}}},
		},
		colDeductions: {
			{Keys: bson.D{{Key: "org_id", Value: 1}, {Key: "member_package_id", Value: 1}}},
			{Keys: bson.D{{Key: "item_id", Value: 1}}},
		},
		colGroups: {
			{Keys: bson.D{{Key: "org_id", Value: 1}, {Key: "member_ids", Value: 1}}},
		},
		colIntents: {
			{Keys: bson.D{{Key: "org_id", Value: 1}}},
			{Keys: bson.D{{Key: "charge_id", Value: 1}}},
		},
		colInvoices: {
			{Keys: bson.D{{Key: "org_id", Value: 1}}},
		},
		colReconciliations: {
			{Keys: bson.D{{Key: "org_id", Value: 1}, {Key: "status", Value: 1}}},
		},
	}
}

func mongoFindOpts(limit int64) []options.Lister[options.FindOptions] {
	if limit <= 0 {
		return nil
	}
	return []options.Lister[options.FindOptions]{options.Find().SetLimit(limit)}
}
