// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package models

// Officer has no active column. Activity is derived from the officer role
// grant.
type Officer struct {
	Principal     string `gorm:"primaryKey;size:128"`
	Name          string `gorm:"size:64"`
	Badge         string `gorm:"size:32"`
	RegisteredAt  int64
	LastIssuedDay int64
	IssuedToday   uint32
}

func (Officer) TableName() string {
	return "officer"
}
