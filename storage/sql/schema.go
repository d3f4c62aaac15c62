package sql

import (
	"crypto/sha1"
	"fmt"
)

type migration struct {
	key   string
	query string
}

func migQuery(query string) migration {
	return migration{
		key:   fmt.Sprintf("%x", sha1.Sum([]byte(query)))[0:8],
		query: query,
	}
}

func migrations() []migration {
	var queries []migration

	// Directory users
	queries = append(queries, migQuery("create table directory_users ("+
		"`user`          varchar(64)              not null,"+
		"`name`          varchar(128) default ''  not null,"+
		"`email`         varchar(128) default ''  not null,"+
		"`department`    varchar(128) default ''  not null,"+
		"`department_id` varchar(64)  default ''  not null,"+
		"`location`      varchar(128) default ''  not null,"+
		"`location_id`   varchar(64)  default ''  not null,"+
		"`job_title`     varchar(128) default ''  not null,"+
		"`manager`       varchar(64)  default ''  not null,"+
		"`org_unit_path` varchar(255) default ''  not null,"+
		"`employee_type` varchar(64)  default ''  not null,"+
		"`user_type`     varchar(64)  default ''  not null,"+
		"`cost_center`   varchar(64)  default ''  not null,"+
		"`status`        varchar(20)  default 'active' not null,"+
		"`deleted_at`    datetime     null,"+
		"`custom_fields` text         null,"+
		"PRIMARY KEY (`user`)"+
		");"))
	queries = append(queries, migQuery("create index directory_users_manager on directory_users(manager);"))
	queries = append(queries, migQuery("create index directory_users_department on directory_users(department_id);"))

	// Org hierarchy (departments and locations share one parent-pointer table)
	queries = append(queries, migQuery("create table org_nodes ("+
		"`kind`   varchar(20)              not null,"+
		"`node`   varchar(64)              not null,"+
		"`name`   varchar(128)             not null,"+
		"`parent` varchar(64)  default ''  not null,"+
		"PRIMARY KEY (`kind`, `node`)"+
		");"))
	queries = append(queries, migQuery("create index org_nodes_parent on org_nodes(kind, parent);"))

	// Groups
	queries = append(queries, migQuery("CREATE TABLE `groups` ("+
		"`group`            varchar(64)              NOT NULL,"+
		"`name`             varchar(64)              NOT NULL,"+
		"`description`      varchar(255) default ''  not null,"+
		"`membership_type`  varchar(20)  default 'static' not null,"+
		"`rule_logic`       varchar(8)   default 'AND' not null,"+
		"`refresh_interval` int          default 0   not null,"+
		"`last_evaluation`  datetime     null,"+
		"PRIMARY KEY (`group`)"+
		");"))

	// Rules
	queries = append(queries, migQuery("CREATE TABLE `group_rules` ("+
		"`rule`           varchar(64)             NOT NULL,"+
		"`group`          varchar(64)             NOT NULL,"+
		"`field`          varchar(32)             NOT NULL,"+
		"`operator`       varchar(32)             NOT NULL,"+
		"`value`          text                    NULL,"+
		"`case_sensitive` tinyint(1)   default 0  NOT NULL,"+
		"`include_nested` tinyint(1)   default 0  NOT NULL,"+
		"`sort_order`     int                     NOT NULL,"+
		"PRIMARY KEY (`rule`)"+
		");"))
	queries = append(queries, migQuery("create index group_rules_group on `group_rules`(`group`);"))

	// Membership. Source is part of the key so a static and a dynamic row
	// for the same (group, user) pair occupy disjoint slots.
	queries = append(queries, migQuery("CREATE TABLE `group_memberships` ("+
		"`group`      varchar(64)            NOT NULL,"+
		"`user`       varchar(64)            NOT NULL,"+
		"`source`     varchar(10)            NOT NULL,"+
		"`active`     tinyint(1)  default 1  NOT NULL,"+
		"`matched_at` datetime    null,"+
		"`removed_at` datetime    null,"+
		"PRIMARY KEY (`group`, `user`, `source`)"+
		");"))
	queries = append(queries, migQuery("create index group_memberships_active on `group_memberships`(`group`, source, active);"))

	return queries
}
