package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Step is one numbered instruction of a test case.
type Step struct {
	Action         string `json:"step_action"`
	Data           string `json:"step_data"`
	ExpectedResult string `json:"expected_result"`
}

// Steps maps step numbers to steps. Numbers are contiguous from 1.
// It encodes as a JSON object keyed by the string step number in
// ascending numeric order.
type Steps map[int]Step

// Add appends s as step len+1 and returns its number.
func (st Steps) Add(s Step) int {
	n := len(st) + 1
	st[n] = s
	return n
}

// Numbers returns the step numbers in ascending order.
func (st Steps) Numbers() []int {
	nums := make([]int, 0, len(st))
	for n := range st {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// Delete removes step n and renumbers the following steps so the
// mapping stays contiguous. It returns a new mapping.
func (st Steps) Delete(n int) (Steps, error) {
	if _, ok := st[n]; !ok {
		return nil, fmt.Errorf("step %d not found", n)
	}
	out := make(Steps, len(st)-1)
	for _, k := range st.Numbers() {
		if k == n {
			continue
		}
		out.Add(st[k])
	}
	return out, nil
}

// Validate reports whether numbering is contiguous from 1.
func (st Steps) Validate() error {
	for i, n := range st.Numbers() {
		if n != i+1 {
			return fmt.Errorf("steps not contiguous: expected step %d, got %d", i+1, n)
		}
	}
	return nil
}

func (st Steps) Clone() Steps {
	if st == nil {
		return nil
	}
	out := make(Steps, len(st))
	for k, v := range st {
		out[k] = v
	}
	return out
}

func (st Steps) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, n := range st.Numbers() {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(strconv.Itoa(n)))
		buf.WriteByte(':')
		b, err := json.Marshal(st[n])
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (st *Steps) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*st = nil
		return nil
	}
	var raw map[string]Step
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Steps, len(raw))
	for k, v := range raw {
		n, err := strconv.Atoi(k)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid step number %q", k)
		}
		out[n] = v
	}
	*st = out
	return nil
}
